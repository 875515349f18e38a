// pre_processor.go implements the Oxy WGSL shader pre-processor. It turns one shader
// source into a feature permutation: compiler options select @oxy:if blocks, valued
// options become WGSL constants, and @oxy:include annotations inject the canonical
// struct definitions of the engine's GPU types.
package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-deferred/engine/camera"
	"github.com/Carmen-Shannon/oxy-deferred/engine/light"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps struct type argument keys to their embedded WGSL source.
	structRegistry map[AnnotationArg]string

	// defines holds the options of the most recent Process call.
	defines map[string]string
}

// PreProcessor builds shader permutations from annotated WGSL source.
type PreProcessor interface {
	// Process pre-processes source with a list of compiler options. An option is either a
	// bare name ("SHADOW_MAPPING") or a name followed by an integer value ("MAX_LIGHTS 8").
	// Every valued option is emitted at the top of the output as `const NAME: u32 = V;`
	// and replaces ${NAME} in kept lines, so options can select binding indices.
	// @oxy:if blocks are kept when their option is present (bare or valued).
	//
	// Parameters:
	//   - source: the raw WGSL shader source code containing annotations
	//   - options: the compiler options
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if an annotation or option is malformed, or blocks are unbalanced
	Process(source string, options []string) (string, error)

	// Defined reports whether an option was set in the most recent Process call.
	//
	// Parameters:
	//   - name: the option name
	//
	// Returns:
	//   - bool: true if the option was set
	Defined(name string) bool
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a new PreProcessor with the engine's GPU struct sources registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]string{
			AnnotationArgCamera:        camera.GPUCameraUniformSource,
			AnnotationArgLightRecord:   light.LightRecordSource,
			AnnotationArgLightExRecord: light.ExtendedLightRecordSource,
			AnnotationArgShadingDesc:   light.ShadingDescSource,
			AnnotationArgGridDesc:      light.GridDescSource,
		},
		defines: make(map[string]string),
	}
}

// parseOptions splits compiler options into a name -> value map. Bare options map to "".
func parseOptions(options []string) (map[string]string, []string, error) {
	defines := make(map[string]string, len(options))
	var order []string
	for _, opt := range options {
		fields := strings.Fields(opt)
		switch len(fields) {
		case 1:
			defines[fields[0]] = ""
		case 2:
			if _, err := strconv.ParseUint(fields[1], 10, 32); err != nil {
				return nil, nil, fmt.Errorf("option %q: value must be an unsigned integer", opt)
			}
			defines[fields[0]] = fields[1]
		default:
			return nil, nil, fmt.Errorf("malformed option %q", opt)
		}
		order = append(order, fields[0])
	}
	return defines, order, nil
}

// condFrame is one open @oxy:if block.
type condFrame struct {
	parentActive bool
	taken        bool
	inElse       bool
	line         int
}

func (p *preProcessor) Process(source string, options []string) (string, error) {
	defines, order, err := parseOptions(options)
	if err != nil {
		return "", err
	}
	p.defines = defines

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines)+len(order))
	emitted := make(map[string]bool)
	for _, name := range order {
		if v := defines[name]; v != "" && !emitted[name] {
			out = append(out, fmt.Sprintf("const %s: u32 = %su;", name, v))
			emitted[name] = true
		}
	}

	active := true
	var stack []condFrame
	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			if active {
				expanded, err := substitute(line, defines)
				if err != nil {
					return "", fmt.Errorf("line %d: %w", i+1, err)
				}
				out = append(out, expanded)
			}
			continue
		}

		switch a.Type {
		case AnnotationTypeIf:
			name, negate := strings.CutPrefix(string(a.Args[0]), "!")
			_, set := defines[name]
			cond := set != negate
			stack = append(stack, condFrame{parentActive: active, taken: cond, line: a.Line})
			active = active && cond
		case AnnotationTypeElse:
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: @oxy:else without @oxy:if", a.Line)
			}
			top := &stack[len(stack)-1]
			if top.inElse {
				return "", fmt.Errorf("line %d: duplicate @oxy:else", a.Line)
			}
			top.inElse = true
			active = top.parentActive && !top.taken
		case AnnotationTypeEndIf:
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: @oxy:endif without @oxy:if", a.Line)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
		case AnnotationTypeInclude:
			if !active {
				continue
			}
			src, ok := p.structRegistry[a.Args[0]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", a.Line, a.Args[0])
			}
			out = append(out, src)
		}
	}
	if len(stack) > 0 {
		return "", fmt.Errorf("line %d: unterminated @oxy:if", stack[len(stack)-1].line)
	}
	return strings.Join(out, "\n"), nil
}

// substitute replaces every ${NAME} in line with the value of a valued option.
func substitute(line string, defines map[string]string) (string, error) {
	if !strings.Contains(line, "${") {
		return line, nil
	}
	var b strings.Builder
	rest := line
	for {
		start := strings.Index(rest, "${")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			return "", fmt.Errorf("unterminated substitution in %q", line)
		}
		name := rest[start+2 : start+end]
		v, ok := defines[name]
		if !ok || v == "" {
			return "", fmt.Errorf("substitution ${%s} needs a valued option", name)
		}
		b.WriteString(rest[:start])
		b.WriteString(v)
		rest = rest[start+end+1:]
	}
}

func (p *preProcessor) Defined(name string) bool {
	_, ok := p.defines[name]
	return ok
}
