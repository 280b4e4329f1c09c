package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/myrjola/mavis/internal/contexthelpers"
	"github.com/myrjola/mavis/internal/errors"
	"github.com/myrjola/mavis/internal/radar"
	"github.com/myrjola/mavis/ui"
)

// pageTemplate returns a template for the given page name.
//
// pageName corresponds to directory inside ui/templates/pages folder. It has to include a template named "page".
// The partials are available to every page.
func (app *application) pageTemplate(pageName string) (*template.Template, error) {
	patterns := []string{
		"templates/base.gohtml",
		"templates/partials/*.gohtml",
		fmt.Sprintf("templates/pages/%s/*.gohtml", pageName),
	}

	// We need to initialize the FuncMap before parsing the files. These will be overridden in the render function.
	t, err := template.New(pageName).Funcs(templateFuncs(nil)).ParseFS(ui.Files, patterns...)
	if err != nil {
		return nil, errors.Wrap(err, "parse templates", slog.String("page", pageName))
	}
	return t, nil
}

// partialTemplate returns the partials without a page.
func (app *application) partialTemplate() (*template.Template, error) {
	t, err := template.New("partials").Funcs(templateFuncs(nil)).ParseFS(ui.Files, "templates/partials/*.gohtml")
	if err != nil {
		return nil, errors.Wrap(err, "parse partials")
	}
	return t, nil
}

// templateFuncs returns the helpers used by the templates. Without a request, nonce and csrf panic.
func templateFuncs(r *http.Request) template.FuncMap {
	nonce := func() template.HTMLAttr {
		panic("not implemented")
	}
	csrf := func() template.HTML {
		panic("not implemented")
	}
	if r != nil {
		ctx := r.Context()
		nonceAttr := fmt.Sprintf("nonce=\"%s\"", contexthelpers.CSPNonce(ctx))
		csrfInput := fmt.Sprintf("<input type=\"hidden\" name=\"csrf_token\" value=\"%s\"/>",
			contexthelpers.CSRFToken(ctx))
		nonce = func() template.HTMLAttr {
			return template.HTMLAttr(nonceAttr) //nolint:gosec // we trust the nonce since it's not provided by user.
		}
		csrf = func() template.HTML {
			return template.HTML(csrfInput) //nolint:gosec // we trust the csrf since it's not provided by user.
		}
	}
	return template.FuncMap{
		"nonce":  nonce,
		"csrf":   csrf,
		"points": radar.Points,
		"inc": func(i int) int {
			return i + 1
		},
		// Agent colors come from the trusted script, e.g. hsl(190, 95%, 50%), which the CSS sanitizer would reject.
		"textColor": func(color string) template.CSS {
			return template.CSS("color: " + color) //nolint:gosec // the script is configured by the operator.
		},
		"signed": func(i int) string {
			if i > 0 {
				return "+" + strconv.Itoa(i)
			}
			return strconv.Itoa(i)
		},
	}
}

func (app *application) render(w http.ResponseWriter, r *http.Request, status int, file string, data any) {
	var (
		err error
		t   *template.Template
	)

	if t, err = app.pageTemplate(file); err != nil {
		app.serverError(w, r, errors.Wrap(err, "parse template", slog.String("template", file)))
		return
	}

	buf := new(bytes.Buffer)
	t.Funcs(templateFuncs(r))
	if err = t.ExecuteTemplate(buf, "base", data); err != nil {
		app.serverError(w, r, errors.Wrap(err, "execute template", slog.String("template", file)))
		return
	}

	w.WriteHeader(status)

	_, _ = buf.WriteTo(w)
}

// renderPartial writes only the named partial, e.g. as a response to an htmx request.
func (app *application) renderPartial(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	buf := new(bytes.Buffer)
	if err := app.executePartial(buf, r, name, data); err != nil {
		app.serverError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	_, _ = buf.WriteTo(w)
}

func (app *application) executePartial(w io.Writer, r *http.Request, name string, data any) error {
	t, err := app.partialTemplate()
	if err != nil {
		return err
	}
	t.Funcs(templateFuncs(r))
	if err = t.ExecuteTemplate(w, name, data); err != nil {
		return errors.Wrap(err, "execute partial", slog.String("partial", name))
	}
	return nil
}
