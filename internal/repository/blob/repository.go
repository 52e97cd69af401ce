package blob

// Tx is an opaque handle to an in-flight database transaction. Each
// repository implementation asserts it back to its own concrete type.
// A nil Tx means "run outside any transaction".
type Tx any
