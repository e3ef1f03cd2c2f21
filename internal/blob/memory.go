package blob

import (
	memorystore "chemledger/internal/infra/blob/memory"
)

type (
	// MemoryStore is the in-memory store with per-operation fault injection.
	MemoryStore = memorystore.Store
	// MemoryOp names an operation accepted by MemoryStore.FailOn.
	MemoryOp = memorystore.Op
)

// Operations accepted by MemoryStore.FailOn.
const (
	MemoryOpPut    = memorystore.OpPut
	MemoryOpGet    = memorystore.OpGet
	MemoryOpHead   = memorystore.OpHead
	MemoryOpDelete = memorystore.OpDelete
	MemoryOpList   = memorystore.OpList
	MemoryOpProbe  = memorystore.OpProbe
)

// NewMemory returns an in-memory store suitable for tests.
func NewMemory() *MemoryStore { return memorystore.New() }
