// annotations.go defines the annotation types and parser for the Oxy WGSL shader
// pre-processor. Annotations are single-line WGSL comments prefixed with @oxy: that
// drive struct injection and conditional compilation of feature permutations.
package shader

import (
	"fmt"
	"strings"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
// Every annotation must appear on a line beginning with "//" followed by this prefix.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source of a registered struct definition
	// into the shader at the annotation site.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include light_record
	AnnotationTypeInclude AnnotationType = "include"

	// AnnotationTypeIf starts a block that is kept only when the named compiler option
	// is set. A leading "!" inverts the test.
	//
	// Syntax: //@oxy:if [!]<OPTION>
	//
	// Example: //@oxy:if SHADOW_MAPPING
	AnnotationTypeIf AnnotationType = "if"

	// AnnotationTypeElse flips the innermost open if block.
	//
	// Syntax: //@oxy:else
	AnnotationTypeElse AnnotationType = "else"

	// AnnotationTypeEndIf closes the innermost open if block.
	//
	// Syntax: //@oxy:endif
	AnnotationTypeEndIf AnnotationType = "endif"
)

// Annotation represents a single parsed @oxy: annotation from a WGSL shader source line.
type Annotation struct {
	// Type identifies which annotation was parsed.
	Type AnnotationType

	// Args holds the annotation's arguments:
	//   - include: [0] = struct type key (e.g. "camera")
	//   - if:      [0] = option name, optionally prefixed with "!"
	Args []AnnotationArg

	// Line is the 1-based line number in the original WGSL source where this annotation
	// was found. Used for error reporting.
	Line int
}

// AnnotationArg is a typed string used as an argument in annotations.
type AnnotationArg string

// Struct type arguments accepted by @oxy:include. Each maps to a Go GPU type with an
// embedded .wgsl asset file.
const (
	// AnnotationArgCamera identifies the CameraUniform struct.
	// Source: engine/camera/assets/camera_uniform.wgsl
	AnnotationArgCamera AnnotationArg = "camera"

	// AnnotationArgLightRecord identifies the LightRecord struct.
	// Source: engine/light/assets/light_record.wgsl
	AnnotationArgLightRecord AnnotationArg = "light_record"

	// AnnotationArgLightExRecord identifies the LightExRecord struct.
	// Source: engine/light/assets/light_ex_record.wgsl
	AnnotationArgLightExRecord AnnotationArg = "light_ex_record"

	// AnnotationArgShadingDesc identifies the ShadingDesc struct.
	// Source: engine/light/assets/shading_desc.wgsl
	AnnotationArgShadingDesc AnnotationArg = "shading_desc"

	// AnnotationArgGridDesc identifies the GridDesc struct.
	// Source: engine/light/assets/grid_desc.wgsl
	AnnotationArgGridDesc AnnotationArg = "grid_desc"
)

// argCount is the number of arguments each annotation type requires.
var argCount = map[AnnotationType]int{
	AnnotationTypeInclude: 1,
	AnnotationTypeIf:      1,
	AnnotationTypeElse:    0,
	AnnotationTypeEndIf:   0,
}

// parseAnnotation parses one source line. Lines that are not annotations yield nil.
//
// Parameters:
//   - line: the source line
//   - lineNum: the 1-based line number used in errors
//
// Returns:
//   - *Annotation: the parsed annotation, or nil
//   - error: an error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	rest, ok := strings.CutPrefix(trimmed, "//")
	if !ok {
		return nil, nil
	}
	rest, ok = strings.CutPrefix(strings.TrimSpace(rest), annotationPrefix)
	if !ok {
		return nil, nil
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy: annotation", lineNum)
	}
	a := &Annotation{Type: AnnotationType(fields[0]), Line: lineNum}
	want, known := argCount[a.Type]
	if !known {
		return nil, fmt.Errorf("line %d: unknown annotation type %q", lineNum, fields[0])
	}
	if len(fields)-1 != want {
		return nil, fmt.Errorf("line %d: @oxy:%s expects %d argument(s), got %d", lineNum, a.Type, want, len(fields)-1)
	}
	for _, f := range fields[1:] {
		a.Args = append(a.Args, AnnotationArg(f))
	}
	return a, nil
}
