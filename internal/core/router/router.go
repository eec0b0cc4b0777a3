package router

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prefeitura-rio/api-dados-rio/internal/aggregate/daterange"
	mylog "github.com/prefeitura-rio/api-dados-rio/internal/logger"
	"github.com/prefeitura-rio/api-dados-rio/internal/mapper"
	"github.com/prefeitura-rio/api-dados-rio/internal/resource"
	"github.com/prefeitura-rio/api-dados-rio/internal/snapshot"
)

// ComandoPrefix groups the operations-center routes.
const ComandoPrefix = "/adm_cor_comando"

type StaticResource interface {
	Get(ctx context.Context, id string) (resource.Result, error)
}

type RangeResource interface {
	Query(ctx context.Context, q daterange.Query) (daterange.Result, error)
}

type SnapshotReader interface {
	Read(ctx context.Context, s snapshot.Spec) (snapshot.Result, error)
}

// Deps are the components behind the v2 routes. Nil resources leave their
// routes unmounted.
type Deps struct {
	Pops             StaticResource
	EventosAbertos   StaticResource
	AtividadesEvento StaticResource
	AtividadesPop    StaticResource
	Eventos          RangeResource
	Snapshots        SnapshotReader
	Catalog          []snapshot.Spec
	Mapper           mapper.Interface
	Log              *slog.Logger
}

type Handlers struct {
	d Deps
}

func New(d Deps) *Handlers {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &Handlers{d: d}
}

// Mount registers the v2 routes on r. Each comando resource is reachable
// under its published name and under its English-speaking alias.
func (h *Handlers) Mount(r chi.Router) {
	r.Route(ComandoPrefix, func(r chi.Router) {
		h.static(r, h.d.Pops, "", "pops")
		h.static(r, h.d.EventosAbertos, "", "ocorrencias_abertas", "eventos_abertos")
		h.static(r, h.d.AtividadesEvento, "eventoId", "ocorrencias_orgaos_responsaveis", "atividades_evento")
		h.static(r, h.d.AtividadesPop, "popId", "procedimento_operacional_padrao_orgaos_responsaveis", "atividades_pop")
		if h.d.Eventos != nil {
			for _, p := range []string{"/ocorrencias", "/eventos"} {
				r.Get(p, h.eventos)
			}
		}
	})
	if h.d.Snapshots == nil {
		return
	}
	for _, s := range h.d.Catalog {
		r.Get("/"+s.Group+"/"+s.Name, h.snapshotData(s))
		r.Get("/"+s.Group+"/ultima_atualizacao_"+s.Name, h.snapshotLastUpdate(s))
	}
}

func (h *Handlers) static(r chi.Router, res StaticResource, param string, paths ...string) {
	if res == nil {
		return
	}
	fn := func(w http.ResponseWriter, req *http.Request) {
		var id string
		if param != "" {
			id = req.URL.Query().Get(param)
		}
		out, err := res.Get(req.Context(), id)
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		ctx := mylog.WithSource(req.Context(), string(out.Source))
		if rc := chi.RouteContext(ctx); rc != nil {
			ctx = mylog.WithRoute(ctx, rc.RoutePattern())
		}
		h.d.Log.DebugContext(ctx, "resource served", "path", req.URL.Path)
		writeJSON(w, http.StatusOK, annotate(out.Value, out.Warning))
	}
	for _, p := range paths {
		r.Get("/"+p, fn)
	}
}

func (h *Handlers) eventos(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	rq, err := daterange.ParseQuery(q.Get("inicio"), q.Get("fim"))
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	out, err := h.d.Eventos.Query(req.Context(), rq)
	if err != nil {
		h.writeError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"eventos": out.Eventos})
}

func (h *Handlers) snapshotData(s snapshot.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		f, err := ParseSpatialFilter(req.URL.Query())
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		out, err := h.d.Snapshots.Read(req.Context(), s)
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		data := out.Data
		if !f.Empty() && h.d.Mapper != nil {
			data, err = mapper.Filter(h.d.Mapper, f, data)
			if err != nil {
				h.writeError(w, req, err)
				return
			}
		}
		writeJSON(w, http.StatusOK, annotate(data, out.Warning))
	}
}

func (h *Handlers) snapshotLastUpdate(s snapshot.Spec) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		out, err := h.d.Snapshots.Read(req.Context(), s)
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, annotate(out.LastUpdate, out.Warning))
	}
}
