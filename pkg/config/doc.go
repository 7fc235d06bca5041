// Package config resolves process configuration from the environment.
// Every setting has a usable default; environment variables with the
// STRATA_ prefix override them. CLI flags take precedence over both and
// are applied by the command layer after loading.
package config
