package markdown

import (
	"bytes"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/codeneeth/neethos-chat/internal/domain/entity"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
	"go.uber.org/zap"
)

// DefaultCodeStyle chroma style used for highlighted code blocks
const DefaultCodeStyle = "onedark"

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeHTML escapes the five HTML-significant characters.
func EscapeHTML(s string) string {
	return escaper.Replace(s)
}

// Renderer turns bot markdown into sanitised HTML.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
	code   *codeBlockRenderer
	log    *zap.Logger
}

// New builds a renderer highlighting code with the named chroma style.
func New(codeStyle string, log *zap.Logger) *Renderer {
	style := styles.Get(codeStyle)
	if style == nil {
		style = styles.Fallback
	}
	code := &codeBlockRenderer{
		formatter: chromahtml.New(chromahtml.WithClasses(true)),
		style:     style,
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(util.Prioritized(code, 100)),
		),
	)

	return &Renderer{
		md:     md,
		policy: newPolicy(),
		code:   code,
		log:    log.Named("markdown"),
	}
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).
		OnElements("div", "span", "pre", "code", "p", "table", "input")
	p.AllowElements("input")
	p.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	p.AllowAttrs("checked", "disabled").OnElements("input")
	p.AllowAttrs("style").Matching(regexp.MustCompile(`^text-align:(left|right|center)$`)).OnElements("th", "td")
	p.RequireNoReferrerOnLinks(true)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// Render converts markdown to HTML. Any failure, including a panic inside the
// markdown pipeline, falls back to the escaped source text.
func (r *Renderer) Render(text string) (out template.HTML) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("markdown render panicked", zap.Any("panic", rec))
			out = Plain(text)
		}
	}()

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		r.log.Warn("markdown render failed", zap.Error(err))
		return Plain(text)
	}
	return template.HTML(r.policy.SanitizeBytes(buf.Bytes()))
}

// RenderMessage renders bot messages as markdown and user messages as escaped text.
func (r *Renderer) RenderMessage(msg entity.Message) template.HTML {
	if msg.IsUser() {
		return Plain(msg.Text)
	}
	return r.Render(msg.Text)
}

// CSS returns the stylesheet for highlighted code.
func (r *Renderer) CSS() string {
	var buf bytes.Buffer
	if err := r.code.formatter.WriteCSS(&buf, r.code.style); err != nil {
		r.log.Warn("failed to write code css", zap.Error(err))
		return ""
	}
	return buf.String()
}

// Plain wraps escaped text so whitespace is preserved.
func Plain(text string) template.HTML {
	return template.HTML(`<div class="whitespace-pre-wrap">` + EscapeHTML(text) + `</div>`)
}

type codeBlockRenderer struct {
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

func (c *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, c.renderFencedCodeBlock)
	reg.Register(ast.KindCodeBlock, c.renderCodeBlock)
}

func (c *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	var lang string
	if n.Info != nil {
		lang = string(n.Language(source))
	}
	return ast.WalkSkipChildren, c.write(w, lang, linesOf(n, source))
}

func (c *codeBlockRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	return ast.WalkSkipChildren, c.write(w, "", linesOf(node, source))
}

func linesOf(node ast.Node, source []byte) string {
	var sb strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(source))
	}
	return sb.String()
}

func (c *codeBlockRenderer) write(w util.BufWriter, lang, code string) error {
	label := lang
	if label == "" {
		label = "code"
	}
	fmt.Fprintf(w, `<div class="code-block"><div class="code-lang">%s</div>`, EscapeHTML(label))

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		fmt.Fprintf(w, `<pre class="chroma"><code>%s</code></pre>`, EscapeHTML(code))
	} else if err := c.formatter.Format(w, c.style, iterator); err != nil {
		return err
	}

	_, err = w.WriteString("</div>\n")
	return err
}
