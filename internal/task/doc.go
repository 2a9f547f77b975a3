// Package task implements the background job system: the queue and worker
// pool, the retry and timeout policy, the book generation pipeline, and the
// periodic recovery sweeper.
package task
