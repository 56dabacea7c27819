package metrics

import (
	"expvar"
	"net/http"
	"net/http/pprof"
	"strings"
)

// VarsHandler expvar 输出（/debug/vars）
func VarsHandler() http.Handler {
	return expvar.Handler()
}

// PprofHandler 挂在 /debug/pprof/ 前缀下，按子路径分发；
// 显式分发以避免依赖 DefaultServeMux 的全局副作用。
func PprofHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch strings.TrimPrefix(r.URL.Path, "/debug/pprof/") {
		case "cmdline":
			pprof.Cmdline(w, r)
		case "profile":
			pprof.Profile(w, r)
		case "symbol":
			pprof.Symbol(w, r)
		case "trace":
			pprof.Trace(w, r)
		default:
			pprof.Index(w, r)
		}
	})
}
