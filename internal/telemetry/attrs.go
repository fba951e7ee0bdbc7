package telemetry

import "go.opentelemetry.io/otel/attribute"

func serviceNameAttr(name string) attribute.KeyValue {
	return attribute.String("service.name", name)
}

func serviceVersionAttr(version string) attribute.KeyValue {
	return attribute.String("service.version", version)
}

// Common attribute keys used across instrumented packages.
const (
	AttrMigrationID = attribute.Key("shepherd.migration_id")
	AttrRuleID      = attribute.Key("shepherd.rule_id")
	AttrRuleType    = attribute.Key("shepherd.rule_type")
	AttrAllowed     = attribute.Key("shepherd.allowed")
	AttrState       = attribute.Key("shepherd.pr_state")
)
