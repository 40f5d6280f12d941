// Package domain contains the core business entities of the mistake notebook:
// users, the shared question bank and per-user mistake records, together with
// the subject, grade and error reason vocabularies. It is independent of any
// specific infrastructure or delivery mechanism.
package domain
