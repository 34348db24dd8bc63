// Package scraper defines the core types, collaborator interfaces and option
// resolution shared by the job-query scraping orchestrator and its adapters.
package scraper
