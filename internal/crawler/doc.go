// Package crawler holds the domain types and collaborator interfaces shared
// by the frontier, index replicas, gateway and crawl workers.
package crawler
