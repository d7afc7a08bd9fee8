package launchdesc

// Summary provides a high-level overview of a loaded descriptor
type Summary struct {
	Source      string       `json:"source,omitempty" yaml:"source,omitempty"`
	TotalApps   int          `json:"total_apps" yaml:"total_apps"`
	WatchedApps int          `json:"watched_apps" yaml:"watched_apps"`
	Apps        []AppSummary `json:"apps" yaml:"apps"`
	UnknownKeys []string     `json:"unknown_keys,omitempty" yaml:"unknown_keys,omitempty"`
}

// AppSummary hides environment values, which may carry credentials
type AppSummary struct {
	Name             string   `json:"name" yaml:"name"`
	WorkingDirectory string   `json:"working_directory" yaml:"working_directory"`
	CommandLine      string   `json:"command_line" yaml:"command_line"`
	Watch            bool     `json:"watch" yaml:"watch"`
	EnvironmentKeys  []string `json:"environment_keys,omitempty" yaml:"environment_keys,omitempty"`
}

func Summarize(descriptor *Descriptor) Summary {
	if descriptor == nil {
		return Summary{Apps: []AppSummary{}}
	}

	summary := Summary{
		Source:      descriptor.Source,
		TotalApps:   len(descriptor.Apps),
		Apps:        make([]AppSummary, 0, len(descriptor.Apps)),
		UnknownKeys: descriptor.UnknownKeys,
	}

	for _, app := range descriptor.Apps {
		if app.Watch {
			summary.WatchedApps++
		}
		summary.Apps = append(summary.Apps, AppSummary{
			Name:             app.Name,
			WorkingDirectory: app.WorkingDirectory,
			CommandLine:      app.CommandLine(),
			Watch:            app.Watch,
			EnvironmentKeys:  app.EnvironmentKeys(),
		})
	}

	return summary
}
