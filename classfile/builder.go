// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package classfile

import "fmt"

// Java 8, the oldest version whose verifier requires stack map frames.
const defaultMajor = 52

// NewClass returns an empty public class. It is mostly useful for building
// fixtures; super may be "" only for java/lang/Object.
func NewClass(name, super string) (*Class, error) {
	p := newPool()
	c := &Class{Major: defaultMajor, Access: AccPublic | AccSuper, pool: p}
	var err error
	if c.this, err = p.addClass(name); err != nil {
		return nil, err
	}
	if super != "" {
		if c.super, err = p.addClass(super); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// AddMethod appends a method. With no instructions the method has no Code
// attribute, as for abstract or native methods.
func (c *Class) AddMethod(access uint16, name, desc string, maxStack, maxLocals uint16, insns ...Instruction) (*Method, error) {
	if c.Method(name, desc) != nil {
		return nil, fmt.Errorf("duplicate method %s%s", name, desc)
	}
	if _, err := argSlots(desc); err != nil {
		return nil, err
	}
	m := &Method{Access: access, name: name, desc: desc}
	var err error
	if m.nameIdx, err = c.pool.addUtf8(name); err != nil {
		return nil, err
	}
	if m.descIdx, err = c.pool.addUtf8(desc); err != nil {
		return nil, err
	}
	if len(insns) > 0 {
		m.Code = &Code{MaxStack: maxStack, MaxLocals: maxLocals}
		m.Code.Reset(insns...)
		m.attrs = []Attribute{{Name: attrCode}}
	}
	c.methods = append(c.methods, m)
	return m, nil
}
