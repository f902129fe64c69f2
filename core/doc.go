// Package core defines the Pet domain model and the small building blocks shared by the
// storage and service layers.
//
// # Contents
//
//   - Pet, Gender and Date: the document stored in the pet database
//   - DataValidationError and DatabaseConnectionError: domain error types mapped to HTTP
//     status codes at the API boundary
//   - PetCache with LRU and Redis implementations
//   - CircuitBreaker guarding calls to the document store
//
// Pets are exchanged with clients and the document store as plain JSON documents. Deserialize
// accepts the decoded request body (any) so that type errors in client input are reported the
// same way regardless of which backend stores the pet.
package core
