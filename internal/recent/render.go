package recent

import (
	"bytes"
	"context"
	"html/template"
	"strings"
)

const (
	// DefaultLimit is the number of entries shown when the widget's
	// container does not configure its own limit.
	DefaultLimit = 6

	// noImageMarker flags the storefront's "no image" placeholder URL.
	// Such URLs render the inline placeholder directly with no
	// client-side fallback.
	noImageMarker = "no-image"
)

// placeholderSVG is the framed-photo placeholder drawn when a product
// has no usable image.
const placeholderSVG = template.HTML(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 525.5 525.5"><path fill="#f4f4f4" d="M0 0h525.5v525.5H0z"/><g fill-rule="evenodd" clip-rule="evenodd"><path d="M324.5 212.7H203c-1.6 0-2.8 1.3-2.8 2.8V308c0 1.6 1.3 2.8 2.8 2.8h121.6c1.6 0 2.8-1.3 2.8-2.8v-92.5c0-1.6-1.3-2.8-2.9-2.8zm-1.1 92.2h-119.5v-90.4h119.6V305z" fill="#fff"/><path d="m305.1 246.3-35.5 44.4-23.6-28.2-25.9 30.6V305h109.4v-8.7l-24.4-50z" fill="#fff"/><circle cx="253.8" cy="242.4" r="10.8" fill="#fff"/></g></svg>`)

var fragmentTmpl = template.Must(template.New("recently-viewed").Parse(`{{- range .Entries -}}
<a href="{{.URL}}" class="block group">
  <div class="aspect-square rounded-lg overflow-hidden mb-3 relative">
    {{- if .Sale}}
    <div class="absolute top-2 left-2 bg-red-500 text-white text-[9px] md:text-[10px] font-bold px-1.5 py-0.5 rounded shadow-sm z-10">SALE</div>
    {{- end}}
    {{- if .ValidImage}}
    <img src="{{.Image}}" alt="{{.Title}}" class="w-full h-full object-cover group-hover:scale-105 transition-transform duration-300 js-recently-viewed-img" data-index="{{.Index}}" loading="lazy">
    <div class="w-full h-full bg-gray-200 flex items-center justify-center js-recently-viewed-placeholder" data-index="{{.Index}}" style="display:none;">{{.Placeholder}}</div>
    {{- else}}
    <div class="w-full h-full bg-gray-200 flex items-center justify-center">{{.Placeholder}}</div>
    {{- end}}
  </div>
  <h4 class="text-[11px] md:text-sm font-medium text-gray-900 leading-tight mb-1 line-clamp-2 min-h-[2.5em]">{{.Title}}</h4>
  <p class="text-[11px] md:text-sm text-gray-600 font-bold">{{.Price}}</p>
</a>
{{- end -}}`))

// RenderOptions are the per-target display constraints: how many
// entries to show and which handle to leave out (the product being
// viewed is never recommended to itself).
type RenderOptions struct {
	Limit         int
	ExcludeHandle string
}

// ImageSlot identifies one rendered image that carries an adjacent
// hidden placeholder, for client-side load-failure fallback.
type ImageSlot struct {
	Index  int
	Handle string
}

// Fragment is the rendered widget content. Hidden means the caller
// should collapse the whole region instead of showing an empty state.
type Fragment struct {
	Hidden bool
	HTML   template.HTML
	Images []ImageSlot
}

type entryView struct {
	Product
	Index       int
	ValidImage  bool
	Sale        bool
	Placeholder template.HTML
}

// Renderer turns the cached history into the widget fragment. It reads
// the cache and nothing else; the cache is never mutated by rendering.
type Renderer struct {
	cache *Cache

	// afterRender runs synchronously before Render returns, replacing
	// the original deferred DOM wiring so ordering is deterministic.
	afterRender func(Fragment)
}

func NewRenderer(cache *Cache) *Renderer {
	return &Renderer{cache: cache}
}

func (r *Renderer) AfterRender(hook func(Fragment)) {
	r.afterRender = hook
}

func (r *Renderer) Render(ctx context.Context, opts RenderOptions) (Fragment, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	products := r.cache.List(ctx)

	shown := make([]Product, 0, limit)
	for _, p := range products {
		if opts.ExcludeHandle != "" && p.Handle == opts.ExcludeHandle {
			continue
		}
		shown = append(shown, p)
		if len(shown) == limit {
			break
		}
	}

	if len(shown) == 0 {
		return Fragment{Hidden: true}, nil
	}

	entries := make([]entryView, 0, len(shown))
	slots := make([]ImageSlot, 0, len(shown))
	for i, p := range shown {
		v := entryView{
			Product:     p,
			Index:       i,
			ValidImage:  validImage(p.Image),
			Sale:        onSale(p),
			Placeholder: placeholderSVG,
		}
		if v.ValidImage {
			slots = append(slots, ImageSlot{Index: i, Handle: p.Handle})
		}
		entries = append(entries, v)
	}

	var buf bytes.Buffer
	if err := fragmentTmpl.Execute(&buf, map[string]any{"Entries": entries}); err != nil {
		return Fragment{}, err
	}

	frag := Fragment{
		HTML:   template.HTML(buf.String()),
		Images: slots,
	}

	if r.afterRender != nil {
		r.afterRender(frag)
	}

	return frag, nil
}

func validImage(url string) bool {
	return url != "" && !strings.Contains(url, noImageMarker)
}

func onSale(p Product) bool {
	return p.CompareAtPrice != "" && p.CompareAtPrice != p.Price
}
