// Package embedding holds the value types of the multi-backend embedding
// orchestrator: batching, backend configuration, credential pools, routing,
// per-backend statistics and generation results.
package embedding
