package evalmock

import "regexp"

var (
	javaDeclaration = regexp.MustCompile(`(?m)(^|[;{}(]\s*)(?:final\s+)?(?:int|long|short|byte|double|float|boolean|char|String|Object|var)(?:\[\])?\s+([A-Za-z_$][\w$]*)\s*(=|;|:)`)
	javaArrayLiteral = regexp.MustCompile(`new\s+[A-Za-z_$][\w$.]*\[\]\s*\{([^{}]*)\}`)
)

// translate maps the Java declaration and array-literal forms the mock
// understands onto JavaScript.
func translate(source string) string {
	out := javaArrayLiteral.ReplaceAllString(source, "[$1]")
	return javaDeclaration.ReplaceAllString(out, "${1}var ${2} ${3}")
}

const prelude = `
function __javaException(name) {
  var ctor = function(message) {
    this.name = name;
    this.message = message === undefined ? "" : String(message);
  };
  ctor.prototype = Object.create(Error.prototype);
  ctor.prototype.constructor = ctor;
  return ctor;
}
var RuntimeException = __javaException("java.lang.RuntimeException");
var IllegalArgumentException = __javaException("java.lang.IllegalArgumentException");
var IllegalStateException = __javaException("java.lang.IllegalStateException");
var NullPointerException = __javaException("java.lang.NullPointerException");
var AssertionError = __javaException("java.lang.AssertionError");
`
