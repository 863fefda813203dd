// Package fetch retrieves remote resources with ordered fallback across
// alternate proxy endpoints when direct retrieval from a restricted origin
// is expected to be rejected. Candidates are tried strictly in list order,
// skipped (never retried) on failure, and a final direct attempt is made
// after the chain is exhausted so a later-unblocked direct path is not
// permanently foreclosed.
package fetch
