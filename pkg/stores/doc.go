// Package stores provides the SQLite-backed run-history store: past runs,
// their step outcomes, and the deployment summary of the last successful run.
package stores
