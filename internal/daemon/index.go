package daemon

import (
	"errors"
	"html/template"
	"net/http"

	"github.com/epinadev/claude-remote-ui/internal/model"
)

// indexPage is the deep-link landing page. It polls /api/output for the
// pane named in the URL and posts replies to /api/send.
var indexPage = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .Active}}{{.Name}}{{else}}No active session{{end}}</title>
<style>
body{font-family:system-ui,sans-serif;margin:0;padding:8px;background:#111;color:#eee}
pre{white-space:pre-wrap;word-break:break-word;font-size:13px;background:#000;padding:8px;min-height:50vh}
form{display:flex;gap:4px}input{flex:1;font-size:16px}
</style>
</head>
<body>
<h3 id="name">{{if .Active}}{{.Name}}{{else}}No active session{{end}}</h3>
<pre id="out"></pre>
<form id="send"><input id="text" autocomplete="off"><button>Send</button></form>
<script>
const pane = {{.Pane}};
const q = pane ? "?pane=" + encodeURIComponent(pane) : "";
async function refresh() {
  const r = await fetch("/api/output" + q);
  const d = await r.json();
  document.getElementById("out").textContent = d.active ? d.output : "No active session";
}
document.getElementById("send").addEventListener("submit", async (e) => {
  e.preventDefault();
  const t = document.getElementById("text");
  await fetch("/api/send", {method: "POST", headers: {"Content-Type": "application/json"},
    body: JSON.stringify(pane ? {text: t.value, pane: pane} : {text: t.value})});
  t.value = "";
  refresh();
});
refresh();
setInterval(refresh, 3000);
</script>
</body>
</html>
`))

type indexData struct {
	Active bool
	Pane   string
	Name   string
}

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	data := indexData{}
	target, err := s.res.Resolve(r.Context(), paneParam(r))
	switch {
	case err == nil:
		data = indexData{Active: true, Pane: target.PaneID, Name: target.DisplayName()}
	case errors.Is(err, model.ErrBadRequest):
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexPage.Execute(w, data); err != nil {
		s.logger.Warn("render index", "err", err)
	}
}
