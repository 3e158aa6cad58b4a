package handles

// Kind of the objects held by a Table. It is encoded in every Handle, so handles of one kind are rejected by
// tables of another.
type Kind uint8

//go:generate go tool enumer -type=Kind -trimprefix=Kind kind.go

const (
	KindInvalid Kind = iota
	KindDevice
	KindLibrary
	KindFunction
	KindPipelineState
	KindCommandQueue
	KindBuffer
	KindCommandBuffer
	KindCommandEncoder
)
