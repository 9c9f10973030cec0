package flow

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	unreadable map[string]bool
	readonly   map[string]bool
}

func (c fakeChecker) Readable(path string) bool { return !c.unreadable[path] }
func (c fakeChecker) Writable(path string) bool { return !c.readonly[path] }

func flowError(t *testing.T, err error) *Error {
	t.Helper()
	var fe *Error
	require.ErrorAs(t, err, &fe)
	return fe
}

func TestBuild_Pipeline(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "pipeline.xml"))
	require.NoError(t, err)

	cmd, err := Build(data, fakeChecker{})
	require.NoError(t, err)
	assert.Equal(t, "Stack", cmd.Title)
	assert.Equal(t,
		`<"/data/in.su" sugain tpow="2" -v 2>> "/data/err.log" | suwind key="cdp" max="9" 2>> "/data/err.log" >"/data/out.su"`,
		cmd.CmdLine)
	assert.Equal(t, "1) Skipping disabled/unconfigured program 'Filter'.\n", cmd.Issues)
}

func TestBuild_SequentialProgramsWithoutFiles(t *testing.T) {
	doc := `<flow><title>Seq</title><io/>
		<program stdin="no" stdout="no" stderr="yes" status="configured"><title>A</title><binary>a</binary></program>
		<program stdin="no" stdout="yes" stderr="yes" status="configured"><title>B</title><binary>b</binary></program>
	</flow>`
	cmd, err := Build([]byte(doc), fakeChecker{})
	require.NoError(t, err)
	assert.Equal(t, "a ; b", cmd.CmdLine)
	assert.Equal(t,
		"No error file selected; error output merged with standard output.\nProceeding without output file.\n",
		cmd.Issues)
}

func TestBuild_SkippedProgramsCountFromOne(t *testing.T) {
	doc := `<flow><title>Seq</title><io/>
		<program status="disabled"><title>A</title><binary>a</binary></program>
		<program stdin="no" stdout="no" stderr="yes" status="configured"><title>B</title><binary>b</binary></program>
		<program status="unconfigured"><title>C</title><binary>c</binary></program>
		<program stdin="no" stdout="yes" stderr="yes" status="configured"><title>D</title><binary>d</binary></program>
	</flow>`
	cmd, err := Build([]byte(doc), fakeChecker{})
	require.NoError(t, err)
	assert.Equal(t, "b ; d", cmd.CmdLine)
	assert.True(t, strings.HasPrefix(cmd.Issues,
		"1) Skipping disabled/unconfigured program 'A'.\n"+
			"2) Skipping disabled/unconfigured program 'C'.\n"), cmd.Issues)
}

func TestBuild_Failures(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		chk    fakeChecker
		issues string
	}{
		{
			name:   "empty flow",
			doc:    `<flow><title>E</title></flow>`,
			issues: "Empty flow.\n",
		},
		{
			name: "nothing configured",
			doc: `<flow><title>N</title>
				<program status="disabled"><title>A</title><binary>a</binary></program></flow>`,
			issues: "1) Skipping disabled/unconfigured program 'A'.\nNo configured programs.\n",
		},
		{
			name: "no input file",
			doc: `<flow><title>I</title>
				<program stdin="yes" status="configured"><title>A</title><binary>a</binary></program></flow>`,
			issues: "No input file selected.\n",
		},
		{
			name: "unreadable input",
			doc: `<flow><title>I</title><io><input>/x</input></io>
				<program stdin="yes" status="configured"><title>A</title><binary>a</binary></program></flow>`,
			chk:    fakeChecker{unreadable: map[string]bool{"/x": true}},
			issues: "Input file /x not present or not accessible.\n",
		},
		{
			name: "no input between programs",
			doc: `<flow><title>B</title>
				<program stdout="no" status="configured"><title>A</title><binary>a</binary></program>
				<program stdin="yes" status="configured"><title>B</title><binary>b</binary></program></flow>`,
			issues: "Broken flow before B (no input).\n",
		},
		{
			name: "unexpected output",
			doc: `<flow><title>B</title>
				<program stdout="yes" status="configured"><title>A</title><binary>a</binary></program>
				<program stdin="no" status="configured"><title>B</title><binary>b</binary></program></flow>`,
			issues: "Broken flow before B (unexpected output).\n",
		},
		{
			name: "missing required parameter",
			doc: `<flow><title>R</title>
				<program status="configured"><title>A</title><binary>a</binary><parameters>
				<parameter><file required="yes"><keyword>f=</keyword><label>Data</label></file></parameter>
				</parameters></program></flow>`,
			issues: "Required parameter 'Data' of program 'A' not provided.\n",
		},
		{
			name: "unknown parameter type",
			doc: `<flow><title>U</title>
				<program status="configured"><title>A</title><binary>a</binary><parameters>
				<parameter><color/></parameter></parameters></program></flow>`,
			issues: "Unknown parameter type.\n",
		},
		{
			name: "output not writable",
			doc: `<flow><title>W</title><io><output>/ro/out</output><error>/e</error></io>
				<program stdout="yes" status="configured"><title>A</title><binary>a</binary></program></flow>`,
			chk:    fakeChecker{readonly: map[string]bool{"/ro/out": true}},
			issues: "Write permission to /ro/out not granted.\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]byte(tt.doc), tt.chk)
			fe := flowError(t, err)
			assert.Equal(t, tt.issues, fe.Issues)
		})
	}
}

func TestBuild_FailureKeepsTitle(t *testing.T) {
	_, err := Build([]byte(`<flow><title>Nightly</title></flow>`), fakeChecker{})
	assert.Equal(t, "Nightly", flowError(t, err).Title)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("<flow><title>x</flow>"))
	fe := flowError(t, err)
	assert.Contains(t, fe.Issues, "Invalid document")
	assert.Error(t, fe.Unwrap())

	_, err = Parse([]byte(`<!DOCTYPE flow SYSTEM "flow.dtd"><flow/>`))
	assert.Contains(t, flowError(t, err).Issues, "DTD specified")
}

func TestOSChecker(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	require.NoError(t, os.WriteFile(in, []byte("x"), 0o644))

	var c OSChecker
	assert.True(t, c.Readable(in))
	assert.False(t, c.Readable(filepath.Join(dir, "missing")))
	assert.True(t, c.Writable(filepath.Join(dir, "out")))
	assert.False(t, c.Writable(filepath.Join(dir, "no", "such", "dir", "out")))
}
