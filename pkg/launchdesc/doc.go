// Package launchdesc loads process-launch descriptors.
//
// A descriptor lists the apps a supervisor should start:
//
//	apps:
//	  - name: bash-runner-worker
//	    workingDirectory: /srv/bash-queue-api
//	    command: ./venv/bin/python3
//	    args: worker.py
//	    watch: false
//	    environment:
//	      REDIS_HOST: localhost
//	      REDIS_PORT: "6379"
//
// YAML, JSON and TOML sources are accepted. The pm2 spellings cwd, script,
// env and ignore_watch are read as aliases of the canonical keys.
//
// Loading is pure: it parses and validates, it never touches the
// filesystem beyond reading the descriptor itself and never spawns anything.
package launchdesc
