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

import (
	"bytes"
	"fmt"
)

// Tag identifies the kind of a constant pool entry.
type Tag uint8

// Constant pool tags, see JVMS §4.4.
const (
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// maxPoolCount is the largest constant_pool_count a class file can carry.
const maxPoolCount = 0xffff

// constant is one constant pool slot. The zero value (tag 0) marks index 0 and
// the unusable slot following a long or double.
type constant struct {
	tag  Tag
	utf8 string
	a, b uint16
	kind uint8
	bits uint64
}

// pool is a constant pool. Indices of entries read from a class file never
// change; new entries are only appended.
type pool struct {
	entries []constant
}

func newPool() *pool {
	return &pool{entries: make([]constant, 1)}
}

func readPool(r *reader) (*pool, error) {
	start := r.pos()
	n := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	if n == 0 {
		return nil, &ParseError{Offset: start, Msg: "constant pool count is zero"}
	}
	p := &pool{entries: make([]constant, n)}
	for i := 1; i < n; i++ {
		c := constant{tag: Tag(r.u1())}
		switch c.tag {
		case TagUtf8:
			l := int(r.u2())
			c.utf8 = string(r.bytes(l))
		case TagInteger, TagFloat:
			c.bits = uint64(r.u4())
		case TagLong, TagDouble:
			hi := uint64(r.u4())
			lo := uint64(r.u4())
			c.bits = hi<<32 | lo
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.a = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			c.a = r.u2()
			c.b = r.u2()
		case TagMethodHandle:
			c.kind = r.u1()
			c.a = r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, r.failf("unknown constant pool tag %d at index %d", c.tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries[i] = c
		if c.tag == TagLong || c.tag == TagDouble {
			i++
			if i >= n {
				return nil, r.failf("8-byte constant at index %d overflows the constant pool", i-1)
			}
		}
	}
	return p, nil
}

func (p *pool) writeTo(w *bytes.Buffer) error {
	if len(p.entries) > maxPoolCount {
		return fmt.Errorf("constant pool has %d entries, limit is %d", len(p.entries), maxPoolCount)
	}
	put2(w, uint16(len(p.entries)))
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		if c.tag == 0 {
			continue
		}
		put1(w, uint8(c.tag))
		switch c.tag {
		case TagUtf8:
			if len(c.utf8) > 0xffff {
				return fmt.Errorf("constant pool string at index %d is too long", i)
			}
			put2(w, uint16(len(c.utf8)))
			w.WriteString(c.utf8)
		case TagInteger, TagFloat:
			put4(w, uint32(c.bits))
		case TagLong, TagDouble:
			put4(w, uint32(c.bits>>32))
			put4(w, uint32(c.bits))
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			put2(w, c.a)
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType, TagDynamic, TagInvokeDynamic:
			put2(w, c.a)
			put2(w, c.b)
		case TagMethodHandle:
			put1(w, c.kind)
			put2(w, c.a)
		}
	}
	return nil
}

func (p *pool) entry(i uint16, tags ...Tag) (constant, error) {
	if int(i) <= 0 || int(i) >= len(p.entries) {
		return constant{}, fmt.Errorf("constant pool index %d out of range", i)
	}
	c := p.entries[i]
	for _, t := range tags {
		if c.tag == t {
			return c, nil
		}
	}
	return constant{}, fmt.Errorf("constant pool index %d has tag %d, want one of %v", i, c.tag, tags)
}

func (p *pool) utf8(i uint16) (string, error) {
	c, err := p.entry(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.utf8, nil
}

func (p *pool) className(i uint16) (string, error) {
	c, err := p.entry(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(c.a)
}

func (p *pool) nameAndType(i uint16) (name, desc string, err error) {
	c, err := p.entry(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	if name, err = p.utf8(c.a); err != nil {
		return "", "", err
	}
	if desc, err = p.utf8(c.b); err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// member resolves a Fieldref, Methodref or InterfaceMethodref entry.
func (p *pool) member(i uint16) (tag Tag, owner, name, desc string, err error) {
	c, err := p.entry(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return 0, "", "", "", err
	}
	if owner, err = p.className(c.a); err != nil {
		return 0, "", "", "", err
	}
	if name, desc, err = p.nameAndType(c.b); err != nil {
		return 0, "", "", "", err
	}
	return c.tag, owner, name, desc, nil
}

// isMember reports whether index i already holds exactly this reference.
func (p *pool) isMember(i uint16, tag Tag, owner, name, desc string) bool {
	if i == 0 {
		return false
	}
	t, o, n, d, err := p.member(i)
	return err == nil && t == tag && o == owner && n == name && d == desc
}

func (p *pool) isClass(i uint16, name string) bool {
	if i == 0 {
		return false
	}
	n, err := p.className(i)
	return err == nil && n == name
}

func (p *pool) add(c constant) (uint16, error) {
	for i := 1; i < len(p.entries); i++ {
		if p.entries[i] == c {
			return uint16(i), nil
		}
	}
	if len(p.entries) >= maxPoolCount {
		return 0, fmt.Errorf("constant pool is full")
	}
	p.entries = append(p.entries, c)
	return uint16(len(p.entries) - 1), nil
}

func (p *pool) addUtf8(s string) (uint16, error) {
	return p.add(constant{tag: TagUtf8, utf8: s})
}

func (p *pool) addClass(name string) (uint16, error) {
	n, err := p.addUtf8(name)
	if err != nil {
		return 0, err
	}
	return p.add(constant{tag: TagClass, a: n})
}

func (p *pool) addNameAndType(name, desc string) (uint16, error) {
	n, err := p.addUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.addUtf8(desc)
	if err != nil {
		return 0, err
	}
	return p.add(constant{tag: TagNameAndType, a: n, b: d})
}

func (p *pool) addMember(tag Tag, owner, name, desc string) (uint16, error) {
	o, err := p.addClass(owner)
	if err != nil {
		return 0, err
	}
	nt, err := p.addNameAndType(name, desc)
	if err != nil {
		return 0, err
	}
	return p.add(constant{tag: tag, a: o, b: nt})
}
