// Package preflight provides readiness checks for external services
// and filesystem paths that captioner depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure; jobs still
//     run, and fail with a classified error if a dependency is really gone.
//   - The CLI "captioner doctor" command renders the same results as a table.
package preflight
