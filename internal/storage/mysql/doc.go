// Package mysql persists answered queries. It provides a JSONL file backed
// repository for local runs and a MySQL repository with embedded schema
// migrations for deployments.
package mysql
