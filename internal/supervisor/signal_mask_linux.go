package supervisor

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// addSignal sets sig's bit in mask, matching the glibc sigset_t layout
// golang.org/x/sys/unix.Sigset_t mirrors on linux/amd64 (an array of
// 64-bit words).
func addSignal(mask *unix.Sigset_t, sig unix.Signal) {
	word := (sig - 1) / 64
	bit := uint((sig - 1) % 64)
	mask.Val[word] |= 1 << bit
}

// unsafePointer narrows the conversion site to this one helper so the rest
// of the package stays free of the unsafe import.
func unsafePointer(p *unix.SignalfdSiginfo) unsafe.Pointer {
	return unsafe.Pointer(p)
}
