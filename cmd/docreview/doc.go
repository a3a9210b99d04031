// Docreview evaluates documents against a checklist with LLM providers.
//
// Text, markdown, HTML, CSV, PDF and DOCX files are reviewed as text;
// images and directories of page images are sent to vision models. Each
// checklist item is reported as pass, partial, fail or n/a with a comment,
// and the exit code can gate CI on the worst evaluation.
//
// Usage:
//
//	docreview review -c checklist.yaml policy.pdf         # review one document
//	docreview review -c items.csv --mode large docs/      # review each document separately
//	docreview review -c items.yaml --fail-on fail scans/  # exit 1 on any failed item
//	docreview serve --addr :8080                          # serve the HTTP API
//	docreview runs list                                   # show recorded runs
package main
