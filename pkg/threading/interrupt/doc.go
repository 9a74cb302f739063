// Package interrupt delivers asynchronous timer and disk events to the
// thread running on a machine.CPU.
//
// Events are raised from any goroutine and held pending until the running
// thread reaches a safe point: Deliver runs the handler of the oldest
// deliverable event on the caller's goroutine, and Wait blocks an idle caller
// until one arrives. Handlers may switch contexts; the handler then finishes
// when the interrupted thread is resumed.
//
// Masking is global and never survives a context switch. Critical sections
// follow the usual shape:
//
//	restore := ctrl.Mask(interrupt.TimerBit | interrupt.DiskBit)
//	defer restore()
//
// Masked events stay pending in arrival order. Unmasking does not deliver by
// itself; the next safe point does. Timer events coalesce while pending, disk
// events are queued one per completion.
package interrupt
