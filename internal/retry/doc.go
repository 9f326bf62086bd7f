// Package retry runs operations under a bounded exponential backoff policy.
package retry
