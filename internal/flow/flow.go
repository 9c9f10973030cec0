// Package flow reads the subset of a GeoXML flow document the daemon needs to
// run it and turns it into a shell command line.
//
// The accepted document looks like:
//
//	<flow>
//	  <title>Stack</title>
//	  <io><input>in.su</input><output>out.su</output><error>err.log</error></io>
//	  <program stdin="yes" stdout="yes" stderr="yes" status="configured">
//	    <title>Gain</title>
//	    <binary>sugain</binary>
//	    <parameters>
//	      <parameter><float required="yes"><keyword>tpow=</keyword><label>Power</label><value>2</value></float></parameter>
//	      <parameter><flag><keyword>-v</keyword><value>on</value></flag></parameter>
//	      <parameter><group><label>Panels</label><parameters>...</parameters></group></parameter>
//	    </parameters>
//	  </program>
//	</flow>
//
// A group holds one <parameters> element per instance. An instance whose
// exclusive attribute is set contributes only the parameter at that index.
package flow

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// StatusConfigured marks a program that takes part in the run.
const StatusConfigured = "configured"

// Document is a parsed flow.
type Document struct {
	XMLName  xml.Name  `xml:"flow"`
	Title    string    `xml:"title"`
	IO       IO        `xml:"io"`
	Programs []Program `xml:"program"`
}

// IO names the flow's input, output and error files.
type IO struct {
	Input  string `xml:"input"`
	Output string `xml:"output"`
	Error  string `xml:"error"`
}

// Program is one step of the flow.
type Program struct {
	Stdin      string     `xml:"stdin,attr"`
	Stdout     string     `xml:"stdout,attr"`
	Stderr     string     `xml:"stderr,attr"`
	Status     string     `xml:"status,attr"`
	Title      string     `xml:"title"`
	Binary     string     `xml:"binary"`
	Parameters Parameters `xml:"parameters"`
}

func (p Program) ReadsStdin() bool { return yes(p.Stdin) }
func (p Program) WritesStdout() bool { return yes(p.Stdout) }
func (p Program) WritesStderr() bool { return yes(p.Stderr) }

// Configured reports whether the program takes part in the run.
func (p Program) Configured() bool {
	return p.Status == StatusConfigured
}

// Parameters is an ordered parameter list, also used for group instances.
type Parameters struct {
	Exclusive string      `xml:"exclusive,attr"`
	Items     []Parameter `xml:"parameter"`
}

// Selected returns the chosen parameter of an exclusive instance.
func (ps Parameters) Selected() (Parameter, bool) {
	if ps.Exclusive == "" {
		return Parameter{}, false
	}
	i, err := strconv.Atoi(ps.Exclusive)
	if err != nil || i < 0 || i >= len(ps.Items) {
		return Parameter{}, false
	}
	return ps.Items[i], true
}

// Parameter wraps exactly one typed parameter element.
type Parameter struct {
	String *Value `xml:"string"`
	Int    *Value `xml:"int"`
	Float  *Value `xml:"float"`
	Range  *Value `xml:"range"`
	File   *Value `xml:"file"`
	Enum   *Value `xml:"enum"`
	Flag   *Value `xml:"flag"`
	Group  *Group `xml:"group"`
}

// valued returns the element of a parameter that takes a value.
func (p Parameter) valued() *Value {
	for _, v := range []*Value{p.String, p.Int, p.Float, p.Range, p.File, p.Enum} {
		if v != nil {
			return v
		}
	}
	return nil
}

// Value is a program parameter.
type Value struct {
	Required string `xml:"required,attr"`
	Keyword  string `xml:"keyword"`
	Label    string `xml:"label"`
	Value    string `xml:"value"`
}

// IsRequired reports whether the parameter must have a value.
func (v *Value) IsRequired() bool { return yes(v.Required) }

// Group is a repeatable set of parameters.
type Group struct {
	Label     string       `xml:"label"`
	Instances []Parameters `xml:"parameters"`
}

func yes(s string) bool {
	switch s {
	case "yes", "true", "on", "1":
		return true
	}
	return false
}

var doctype = []byte("<!DOCTYPE")

// Parse decodes a flow document. Parse errors are returned as *Error so that
// callers can report the issue text to the user.
func Parse(data []byte) (*Document, error) {
	if bytes.Contains(data, doctype) {
		return nil, &Error{Issues: "DTD specified. The <!DOCTYPE ...> must not appear in the flow.\n"}
	}
	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{
			Issues: "Invalid document. It has a syntax error or doesn't match the flow structure.\n",
			Err:    err,
		}
	}
	return &doc, nil
}
