// Package tools hosts the Tool Adapter Registry and the collaborators plans
// call into: calculator, weather, currency, knowledge_base and llm.
//
// Every operation receives typed Args and returns a value.Value. Domain
// failures are reported as *DomainError and surface from Registry.Invoke as
// TOOL_EXECUTION_FAILED with their kind preserved. Registries are populated at
// start-up, sealed, and then shared read-only between executions.
package tools
