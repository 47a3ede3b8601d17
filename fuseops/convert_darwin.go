// Copyright 2024 The EmberFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package fuseops

import (
	"unsafe"

	"github.com/emberfs/fuse/internal/buffer"
	"github.com/emberfs/fuse/internal/fusekernel"
)

func init() {
	convertPlatform = convertDarwin
}

func convertDarwin(
	m *buffer.InMessage,
	protocol fusekernel.Protocol) (Op, error) {
	opcode := m.Header().Opcode

	truncated := func() error {
		return &TruncatedRequestError{Opcode: opcode}
	}

	switch opcode {
	case fusekernel.OpSetvolname:
		name, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		return &SetVolumeNameOp{Name: name}, nil

	case fusekernel.OpGetxtimes:
		return &GetXTimesOp{}, nil

	case fusekernel.OpExchange:
		in := (*fusekernel.ExchangeIn)(m.Consume(unsafe.Sizeof(fusekernel.ExchangeIn{})))
		if in == nil {
			return nil, truncated()
		}
		oldName, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		newName, ok := m.ConsumeString()
		if !ok {
			return nil, truncated()
		}
		return &ExchangeOp{
			OldName:   oldName,
			NewParent: InodeID(in.Newdir),
			NewName:   newName,
			Options:   in.Options,
		}, nil
	}

	return nil, nil
}
