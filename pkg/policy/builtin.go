package policy

// BuiltinPolicies returns the policies compiled into every engine.
func BuiltinPolicies() []Policy {
	return []Policy{
		unitNamingPolicy(),
		teardownSafetyPolicy(),
	}
}

// unitNamingPolicy enforces unit naming conventions.
func unitNamingPolicy() Policy {
	return Policy{
		Name:        "unit-naming",
		Description: "Enforces unit naming conventions (lowercase, alphanumeric, hyphens only)",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package strata.policies.naming

import rego.v1

deny contains violation if {
	some unit in input.units
	lower(unit.name) != unit.name
	violation := {
		"message": sprintf("Unit name '%s' must be lowercase", [unit.name]),
		"severity": "error",
		"unit": unit.name,
	}
}

deny contains violation if {
	some unit in input.units
	not regex.match("^[a-z0-9-]+$", unit.name)
	violation := {
		"message": sprintf("Unit name '%s' must contain only lowercase letters, numbers, and hyphens", [unit.name]),
		"severity": "error",
		"unit": unit.name,
	}
}

deny contains violation if {
	some unit in input.units
	count(unit.name) > 63
	violation := {
		"message": sprintf("Unit name '%s' must not exceed 63 characters", [unit.name]),
		"severity": "error",
		"unit": unit.name,
	}
}`,
	}
}

// teardownSafetyPolicy restricts teardown of protected units.
func teardownSafetyPolicy() Policy {
	return Policy{
		Name:        "teardown-safety",
		Description: "Blocks teardown of units labeled protected and warns on production teardowns",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package strata.policies.teardown

import rego.v1

deny contains violation if {
	input.direction == "down"
	some unit in input.units
	unit.labels.protected == "true"
	violation := {
		"message": sprintf("Cannot tear down unit %s labeled protected", [unit.name]),
		"severity": "error",
		"unit": unit.name,
	}
}

deny contains violation if {
	input.direction == "down"
	input.environment == "production"
	count(input.units) > 5
	violation := {
		"message": sprintf("Teardown touches %d units in production - review carefully", [count(input.units)]),
		"severity": "warning",
	}
}`,
	}
}
