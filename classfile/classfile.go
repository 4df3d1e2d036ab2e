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

// Package classfile reads, edits and writes JVM class files.
//
// A parsed Class keeps the original constant pool indices and the raw bytes of
// every attribute it does not need to understand, so a class that is parsed
// and written back without edits is reproduced byte for byte. Method bodies
// are decoded into instruction sequences whose branch destinations are
// instruction indices; edited bodies are re-laid out when written, with
// branch offsets, switch padding, exception ranges, debug tables and stack
// map frames recomputed.
package classfile

import (
	"bytes"
	"fmt"
)

const magic = 0xcafebabe

// Access flags used by this package.
const (
	AccPublic   = 0x0001
	AccPrivate  = 0x0002
	AccStatic   = 0x0008
	AccFinal    = 0x0010
	AccSuper    = 0x0020
	AccAbstract = 0x0400
)

// Attribute is an attribute kept as raw bytes.
type Attribute struct {
	Name string
	Data []byte

	nameIdx uint16
}

// Field is a field_info structure.
type Field struct {
	Access uint16

	nameIdx, descIdx uint16
	attrs            []Attribute
}

// Method is a method_info structure.
type Method struct {
	Access uint16
	// Code is the decoded body, or nil for abstract and native methods.
	Code *Code

	name, desc       string
	nameIdx, descIdx uint16
	// attrs holds every attribute in file order. The Code attribute is kept
	// as a placeholder with nil Data and is replaced by Code when encoding.
	attrs []Attribute
}

// Name returns the method name.
func (m *Method) Name() string { return m.name }

// Desc returns the method descriptor.
func (m *Method) Desc() string { return m.desc }

func (m *Method) String() string { return m.name + m.desc }

// Class is a parsed class file.
type Class struct {
	Minor, Major uint16
	Access       uint16

	pool       *pool
	this       uint16
	super      uint16
	interfaces []uint16
	fields     []*Field
	methods    []*Method
	attrs      []Attribute
}

// Name returns the internal name of the class, e.g. "java/lang/String".
func (c *Class) Name() string {
	n, _ := c.pool.className(c.this)
	return n
}

// SuperName returns the internal name of the superclass, or "" for
// java/lang/Object.
func (c *Class) SuperName() string {
	if c.super == 0 {
		return ""
	}
	n, _ := c.pool.className(c.super)
	return n
}

// Methods returns the methods in declaration order.
func (c *Class) Methods() []*Method {
	return append([]*Method(nil), c.methods...)
}

// Method returns the method with the given name and descriptor, or nil.
func (c *Class) Method(name, desc string) *Method {
	for _, m := range c.methods {
		if m.name == name && m.desc == desc {
			return m
		}
	}
	return nil
}

// Modified reports whether any method body was edited.
func (c *Class) Modified() bool {
	for _, m := range c.methods {
		if m.Code != nil && m.Code.Modified() {
			return true
		}
	}
	return false
}

// CheckMagic returns a *ParseError unless data starts with the class file
// magic number.
func CheckMagic(data []byte) error {
	r := newReader(data, 0)
	m := r.u4()
	if r.err != nil {
		return r.err
	}
	if m != magic {
		return &ParseError{Offset: 0, Msg: fmt.Sprintf("bad magic %#08x", m)}
	}
	return nil
}

// Parse decodes a class file. Malformed input is reported as a *ParseError.
func Parse(data []byte) (*Class, error) {
	if err := CheckMagic(data); err != nil {
		return nil, err
	}
	r := newReader(data, 0)
	r.u4()
	c := &Class{}
	c.Minor = r.u2()
	c.Major = r.u2()
	if r.err != nil {
		return nil, r.err
	}
	p, err := readPool(r)
	if err != nil {
		return nil, err
	}
	c.pool = p
	c.Access = r.u2()
	c.this = r.u2()
	c.super = r.u2()
	if r.err != nil {
		return nil, r.err
	}
	if _, err := p.className(c.this); err != nil {
		return nil, &ParseError{Offset: r.pos() - 4, Msg: "this_class: " + err.Error()}
	}
	if c.super != 0 {
		if _, err := p.className(c.super); err != nil {
			return nil, &ParseError{Offset: r.pos() - 2, Msg: "super_class: " + err.Error()}
		}
	}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		c.interfaces = append(c.interfaces, r.u2())
	}

	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		f := &Field{Access: r.u2(), nameIdx: r.u2(), descIdx: r.u2()}
		if f.attrs, err = readAttributes(r, p); err != nil {
			return nil, err
		}
		c.fields = append(c.fields, f)
	}

	n = int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		m, err := readMethod(r, p)
		if err != nil {
			return nil, err
		}
		c.methods = append(c.methods, m)
	}

	if c.attrs, err = readAttributes(r, p); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	if !r.done() {
		return nil, r.failf("%d trailing bytes after class file", len(r.b)-r.off)
	}
	return c, nil
}

func readMethod(r *reader, p *pool) (*Method, error) {
	start := r.pos()
	m := &Method{Access: r.u2(), nameIdx: r.u2(), descIdx: r.u2()}
	if r.err != nil {
		return nil, r.err
	}
	var err error
	if m.name, err = p.utf8(m.nameIdx); err != nil {
		return nil, &ParseError{Offset: start + 2, Msg: "method name: " + err.Error()}
	}
	if m.desc, err = p.utf8(m.descIdx); err != nil {
		return nil, &ParseError{Offset: start + 4, Msg: "method descriptor: " + err.Error()}
	}
	n := int(r.u2())
	for i := 0; i < n && r.err == nil; i++ {
		a, ar, err := readAttribute(r, p)
		if err != nil {
			return nil, err
		}
		if a.Name == attrCode {
			if m.Code != nil {
				return nil, &ParseError{Offset: ar.base, Msg: fmt.Sprintf("method %s%s has two Code attributes", m.name, m.desc)}
			}
			if m.Code, err = decodeCode(p, ar); err != nil {
				return nil, err
			}
			a.Data = nil
		}
		m.attrs = append(m.attrs, a)
	}
	return m, r.err
}

func readAttribute(r *reader, p *pool) (Attribute, *reader, error) {
	start := r.pos()
	a := Attribute{nameIdx: r.u2()}
	ar := r.sub(int(r.u4()))
	if r.err != nil {
		return a, nil, r.err
	}
	name, err := p.utf8(a.nameIdx)
	if err != nil {
		return a, nil, &ParseError{Offset: start, Msg: "attribute name: " + err.Error()}
	}
	a.Name = name
	a.Data = append([]byte(nil), ar.b...)
	return a, ar, nil
}

func readAttributes(r *reader, p *pool) ([]Attribute, error) {
	n := int(r.u2())
	var attrs []Attribute
	for i := 0; i < n && r.err == nil; i++ {
		a, _, err := readAttribute(r, p)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, a)
	}
	return attrs, r.err
}

func writeAttributes(w *bytes.Buffer, p *pool, attrs []Attribute) error {
	put2(w, uint16(len(attrs)))
	for _, a := range attrs {
		idx := a.nameIdx
		if s, err := p.utf8(idx); idx == 0 || err != nil || s != a.Name {
			if idx, err = p.addUtf8(a.Name); err != nil {
				return err
			}
		}
		if uint64(len(a.Data)) > 0xffffffff {
			return fmt.Errorf("attribute %s is too large", a.Name)
		}
		put2(w, idx)
		put4(w, uint32(len(a.Data)))
		w.Write(a.Data)
	}
	return nil
}

// Bytes encodes the class. Unmodified method bodies are copied verbatim;
// modified ones are re-laid out and may append entries to the constant pool.
func (c *Class) Bytes() ([]byte, error) {
	// Everything after the constant pool is encoded first, since encoding
	// modified code can add constants.
	var body bytes.Buffer
	put2(&body, c.Access)
	put2(&body, c.this)
	put2(&body, c.super)
	put2(&body, uint16(len(c.interfaces)))
	for _, i := range c.interfaces {
		put2(&body, i)
	}
	put2(&body, uint16(len(c.fields)))
	for _, f := range c.fields {
		put2(&body, f.Access)
		put2(&body, f.nameIdx)
		put2(&body, f.descIdx)
		if err := writeAttributes(&body, c.pool, f.attrs); err != nil {
			return nil, err
		}
	}
	put2(&body, uint16(len(c.methods)))
	for _, m := range c.methods {
		put2(&body, m.Access)
		put2(&body, m.nameIdx)
		put2(&body, m.descIdx)
		attrs := make([]Attribute, len(m.attrs))
		copy(attrs, m.attrs)
		for i, a := range attrs {
			if a.Name != attrCode || m.Code == nil {
				continue
			}
			data, err := m.Code.encode(c.pool)
			if err != nil {
				return nil, fmt.Errorf("method %s: %w", m, err)
			}
			attrs[i].Data = data
		}
		if err := writeAttributes(&body, c.pool, attrs); err != nil {
			return nil, err
		}
	}
	if err := writeAttributes(&body, c.pool, c.attrs); err != nil {
		return nil, err
	}

	var w bytes.Buffer
	put4(&w, magic)
	put2(&w, c.Minor)
	put2(&w, c.Major)
	if err := c.pool.writeTo(&w); err != nil {
		return nil, err
	}
	w.Write(body.Bytes())
	return w.Bytes(), nil
}
