// Package api serves reviews over HTTP.
//
// Routes:
//
//	GET  /health                 liveness
//	POST /api/reviews            run a review (JSON or multipart) and return the report
//	GET  /api/reviews            list recent runs
//	GET  /api/reviews/{runID}    one run with its final results
//
// Reviews run synchronously within the request. When an API key is
// configured every /api route requires it as a bearer token.
package api
