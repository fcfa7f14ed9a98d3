package devserver

// ANSI colours for the DEV route listing
const (
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiBlue    = "\033[34m"
	ansiCyan    = "\033[36m"
	ansiYellow  = "\033[33m"
	ansiMagenta = "\033[35m"
	ansiGray    = "\033[90m"
	ansiReset   = "\033[0m"
)

var methodColors = map[string]string{
	"GET":    ansiGreen,
	"POST":   ansiBlue,
	"PUT":    ansiCyan,
	"PATCH":  ansiMagenta,
	"DELETE": ansiRed,
	"HEAD":   ansiYellow,
}

func colourMethod(method string) string {
	c, ok := methodColors[method]
	if !ok {
		c = ansiGray
	}
	return c + method + ansiReset
}
