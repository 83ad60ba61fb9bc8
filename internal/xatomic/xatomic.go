// Package xatomic provides small typed atomics, used instead of bare
// sync/atomic calls so intent reads at the call site.
/*
 * Copyright (c) 2026, The Kerr Project Authors. All rights reserved.
 */
package xatomic

import "sync/atomic"

type Uint32 struct{ v uint32 }

func (u *Uint32) Load() uint32            { return atomic.LoadUint32(&u.v) }
func (u *Uint32) Store(v uint32)          { atomic.StoreUint32(&u.v, v) }
func (u *Uint32) Add(delta uint32) uint32 { return atomic.AddUint32(&u.v, delta) }
