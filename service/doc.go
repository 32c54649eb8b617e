// Package service composes the matching engine with its trade journal and
// exposes the programmatic entry point for order commands.
package service
