// Package policy gates plans with Rego policies. Policies evaluate a
// plan input (the stack's units plus run context) and emit deny
// violations; error-severity violations block the run, warnings are
// reported but do not. Built-in policies cover unit naming and teardown
// safety; operators can load additional .rego files from a directory.
package policy
