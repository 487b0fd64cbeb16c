package taxonomy

func featureSchema() Schema {
	return object(map[string]any{
		"id":           str(),
		"name":         str(),
		"description":  str(),
		"owner":        str(),
		"project":      str(),
		"enabled":      boolean(),
		"archived":     boolean(),
		"valueType":    enum("boolean", "string", "number", "json"),
		"defaultValue": str(),
		"tags":         strList(),
		"environments": anyObj(),
		"dateCreated":  str(),
		"dateUpdated":  str(),
	})
}

func experimentSchema() Schema {
	return object(map[string]any{
		"id":          str(),
		"name":        str(),
		"project":     str(),
		"hypothesis":  str(),
		"description": str(),
		"owner":       str(),
		"tags":        strList(),
		"status":      enum("draft", "running", "stopped"),
		"archived":    boolean(),
		"variations": list(object(map[string]any{
			"id":   str(),
			"key":  str(),
			"name": str(),
		})),
		"phases": list(anyObj()),
	})
}

func savedGroupSchema() Schema {
	return object(map[string]any{
		"id":           str(),
		"name":         str(),
		"owner":        str(),
		"type":         enum("condition", "list"),
		"condition":    str(),
		"attributeKey": str(),
		"values":       strList(),
		"description":  str(),
		"projects":     strList(),
	})
}

func safeRolloutSchema() Schema {
	return object(map[string]any{
		"featureId":     str(),
		"safeRolloutId": str(),
		"environment":   str(),
		"status":        str(),
	}, "featureId", "safeRolloutId")
}

func experimentWarningSchema() Schema {
	return object(map[string]any{
		"type":           enum("auto-update", "multiple-exposures", "srm"),
		"experimentId":   str(),
		"experimentName": str(),
		"threshold":      number(),
		"pValue":         number(),
	}, "type", "experimentId")
}

func significanceSchema() Schema {
	return object(map[string]any{
		"experimentId":   str(),
		"experimentName": str(),
		"metricId":       str(),
		"metricName":     str(),
		"variationId":    str(),
		"variationName":  str(),
		"statsEngine":    enum("bayesian", "frequentist"),
		"criticalValue":  number(),
		"winning":        boolean(),
	}, "experimentId", "metricId", "variationId")
}

func decisionExtra() Schema {
	return object(map[string]any{
		"decision": object(map[string]any{
			"reason":      str(),
			"variationId": str(),
		}, "reason"),
	}, "decision")
}

// Entries returns the taxonomy table. It is the single source of truth for
// every event type; callers must not mutate the returned slice.
func Entries() []Entry {
	return []Entry{
		{Name: Name{ResourceFeature, "created"}, PayloadSchema: featureSchema(), FirstVersion: "2.5.0",
			Description: "Triggered when a feature is created"},
		{Name: Name{ResourceFeature, "updated"}, PayloadSchema: featureSchema(), IsDiff: true, FirstVersion: "2.5.0",
			Description: "Triggered when a feature is updated"},
		{Name: Name{ResourceFeature, "deleted"}, PayloadSchema: featureSchema(), FirstVersion: "2.5.0",
			Description: "Triggered when a feature is deleted"},
		{Name: Name{ResourceFeature, "saferollout.ship"}, PayloadSchema: safeRolloutSchema(), FirstVersion: "3.6.0",
			Description: "Triggered when a safe rollout is ready to ship to release"},
		{Name: Name{ResourceFeature, "saferollout.rollback"}, PayloadSchema: safeRolloutSchema(), FirstVersion: "3.6.0",
			Description: "Triggered when a safe rollout is rolled back"},
		{Name: Name{ResourceFeature, "saferollout.unhealthy"}, PayloadSchema: safeRolloutSchema(), FirstVersion: "3.6.0",
			Description: "Triggered when a safe rollout fails a health check"},

		{Name: Name{ResourceExperiment, "created"}, PayloadSchema: experimentSchema(), FirstVersion: "2.5.0",
			Description: "Triggered when an experiment is created"},
		{Name: Name{ResourceExperiment, "updated"}, PayloadSchema: experimentSchema(), IsDiff: true, FirstVersion: "2.5.0",
			Description: "Triggered when an experiment is updated"},
		{Name: Name{ResourceExperiment, "deleted"}, PayloadSchema: experimentSchema(), FirstVersion: "2.5.0",
			Description: "Triggered when an experiment is deleted"},
		{Name: Name{ResourceExperiment, "warning"}, PayloadSchema: experimentWarningSchema(), FirstVersion: "2.9.0",
			Description: "Triggered when a warning condition is detected on an experiment"},
		{Name: Name{ResourceExperiment, "info.significance"}, PayloadSchema: significanceSchema(), FirstVersion: "3.0.0",
			Description: "Triggered when a metric reaches statistical significance"},
		{Name: Name{ResourceExperiment, "decision.ship"}, PayloadSchema: experimentSchema(), ExtraSchema: decisionExtra(), FirstVersion: "3.5.0",
			Description: "Triggered when an experiment is ready to ship a variation"},
		{Name: Name{ResourceExperiment, "decision.rollback"}, PayloadSchema: experimentSchema(), ExtraSchema: decisionExtra(), FirstVersion: "3.5.0",
			Description: "Triggered when an experiment should be rolled back to control"},
		{Name: Name{ResourceExperiment, "decision.review"}, PayloadSchema: experimentSchema(), ExtraSchema: decisionExtra(), FirstVersion: "3.5.0",
			Description: "Triggered when an experiment is ready for review"},

		{Name: Name{ResourceSavedGroup, "created"}, PayloadSchema: savedGroupSchema(), FirstVersion: "3.3.0",
			Description: "Triggered when a saved group is created"},
		{Name: Name{ResourceSavedGroup, "updated"}, PayloadSchema: savedGroupSchema(), IsDiff: true, FirstVersion: "3.3.0",
			Description: "Triggered when a saved group is updated"},
		{Name: Name{ResourceSavedGroup, "deleted"}, PayloadSchema: savedGroupSchema(), FirstVersion: "3.3.0",
			Description: "Triggered when a saved group is deleted"},

		{Name: Name{ResourceUser, "login"}, FirstVersion: "3.3.0", HideFromDocs: true,
			Description: "Triggered when a user logs in",
			PayloadSchema: object(map[string]any{
				"id":        str(),
				"email":     str(),
				"name":      str(),
				"ip":        str(),
				"userAgent": str(),
				"os":        str(),
				"device":    str(),
			}, "id", "email")},

		{Name: Name{ResourceWebhook, "test"}, FirstVersion: "3.3.0", HideFromDocs: true,
			Description: "Triggered when a webhook is tested",
			PayloadSchema: closed(object(map[string]any{
				"webhookId": str(),
			}, "webhookId"))},
	}
}
