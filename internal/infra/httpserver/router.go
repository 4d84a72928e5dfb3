package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	appanalyses "github.com/vastulab/vastu-backend/internal/application/analyses"
	appusers "github.com/vastulab/vastu-backend/internal/application/users"
	domain "github.com/vastulab/vastu-backend/internal/domain/analyses"
	rulesdomain "github.com/vastulab/vastu-backend/internal/domain/rules"
	"github.com/vastulab/vastu-backend/internal/domain/users"
	"github.com/vastulab/vastu-backend/internal/domain/vastu"
	"github.com/vastulab/vastu-backend/internal/middleware"
)

// Deps carries everything the router needs wired in
type Deps struct {
	Analyses  *appanalyses.Service
	Users     *appusers.Service
	Catalog   rulesdomain.Catalog
	Health    map[string]middleware.HealthChecker
	RateRPS   float64
	RateBurst int
}

type Router struct {
	analyses *appanalyses.Service
	users    *appusers.Service
	catalog  rulesdomain.Catalog
	validate *validator.Validate
}

func NewRouter(d Deps) http.Handler {
	rt := &Router{
		analyses: d.Analyses,
		users:    d.Users,
		catalog:  d.Catalog,
		validate: validator.New(),
	}

	mux := chi.NewRouter()
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))
	mux.Use(middleware.Logging)
	mux.Use(middleware.Metrics)
	mux.Use(middleware.BearerAuth(d.Users))
	if d.RateRPS > 0 {
		mux.Use(middleware.RateLimit(d.RateRPS, d.RateBurst))
	}

	mux.Get("/health", middleware.HealthHandler(d.Health))
	mux.Method(http.MethodGet, "/metrics", middleware.Handler())

	mux.Route("/v1", func(r chi.Router) {
		r.Post("/auth/register", rt.wrap(rt.handleRegister))
		r.Get("/me", rt.wrap(rt.handleMe))

		r.Route("/analyses", func(r chi.Router) {
			r.Post("/", rt.wrap(rt.handleCreate))
			r.Post("/upload", rt.wrap(rt.handleUpload))
			r.Get("/", rt.wrap(rt.handleList))
			r.Get("/{id}", rt.wrap(rt.handleGet))
			r.Patch("/{id}", rt.wrap(rt.handleUpdate))
			r.Delete("/{id}", rt.wrap(rt.handleDelete))
			r.Post("/{id}/start", rt.wrap(rt.handleStart))
			r.Post("/{id}/like", rt.wrap(rt.handleLike))
			r.Post("/{id}/share", rt.wrap(rt.handleShare))
		})

		r.Get("/rules", rt.wrap(rt.handleRules))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// wrap translates the error taxonomy into status codes and the fixed
// {success, kind, message} rejection envelope.
func (rt *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		kind := domain.KindOf(err)
		status := http.StatusBadGateway
		switch kind {
		case domain.KindValidation:
			status = http.StatusBadRequest
		case domain.KindUnauthorized:
			status = http.StatusUnauthorized
		case domain.KindForbidden:
			status = http.StatusForbidden
		case domain.KindNotFound:
			status = http.StatusNotFound
		case domain.KindConflict:
			status = http.StatusConflict
		}
		msg := err.Error()
		var de *domain.Error
		if errors.As(err, &de) {
			msg = de.Message
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"kind":    kind,
			"message": msg,
		})
	}
}

func respond(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    data,
	})
}

func (rt *Router) decode(req *http.Request, dst any) error {
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		return domain.Validationf("malformed request body: %v", err)
	}
	if err := rt.validate.Struct(dst); err != nil {
		return domain.Validationf("%v", err)
	}
	return nil
}

func callerID(req *http.Request) string {
	p := middleware.PrincipalFromContext(req.Context())
	if p == nil || !p.IsActive {
		return ""
	}
	return p.ID
}

//
// ==== auth ====
//

type registerRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=100"`
	Tier  string `json:"tier" validate:"omitempty,oneof=free premium"`
}

type registerResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Tier     string `json:"tier"`
	APIToken string `json:"api_token"`
}

// POST /v1/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, req *http.Request) error {
	var body registerRequest
	if err := rt.decode(req, &body); err != nil {
		return err
	}
	u, err := rt.users.Register(req.Context(), appusers.RegisterCommand{
		Email: body.Email,
		Name:  body.Name,
		Tier:  users.Tier(body.Tier),
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusCreated, registerResponse{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Tier:     string(u.Tier),
		APIToken: u.APIToken,
	})
}

// GET /v1/me
func (rt *Router) handleMe(w http.ResponseWriter, req *http.Request) error {
	p := middleware.PrincipalFromContext(req.Context())
	if p == nil {
		return domain.Unauthorizedf("authentication required")
	}
	return respond(w, http.StatusOK, p)
}

//
// ==== analyses ====
//

type dimensionsRequest struct {
	Length float64 `json:"length" validate:"omitempty,gt=0"`
	Width  float64 `json:"width" validate:"omitempty,gt=0"`
	Unit   string  `json:"unit" validate:"omitempty,oneof=m ft"`
}

type roomRequest struct {
	Name       string             `json:"name" validate:"required,max=60"`
	Type       string             `json:"type" validate:"required"`
	Position   string             `json:"position" validate:"omitempty,max=60"`
	Dimensions *dimensionsRequest `json:"dimensions"`
	Direction  string             `json:"direction"`
}

type floorPlanRequest struct {
	Orientation string             `json:"orientation" validate:"required"`
	Dimensions  *dimensionsRequest `json:"dimensions"`
	Rooms       []roomRequest      `json:"rooms" validate:"max=50,dive"`
}

type createAnalysisRequest struct {
	Title       string           `json:"title" validate:"required,min=3,max=100"`
	Description string           `json:"description" validate:"max=500"`
	FloorPlan   floorPlanRequest `json:"floor_plan" validate:"required"`
	IsPublic    bool             `json:"is_public"`
	Tags        []string         `json:"tags" validate:"max=20,dive,max=40"`
}

func (fp floorPlanRequest) toDomain() domain.FloorPlan {
	plan := domain.FloorPlan{
		Orientation: vastu.Direction(strings.ToLower(fp.Orientation)),
		Dimensions:  fp.Dimensions.toDomain(),
	}
	for _, r := range fp.Rooms {
		plan.Rooms = append(plan.Rooms, domain.Room{
			Name:       r.Name,
			Type:       vastu.RoomType(strings.ToLower(r.Type)),
			Position:   r.Position,
			Dimensions: r.Dimensions.toDomain(),
			Direction:  vastu.Direction(strings.ToLower(r.Direction)),
		})
	}
	return plan
}

func (d *dimensionsRequest) toDomain() *domain.Dimensions {
	if d == nil {
		return nil
	}
	return &domain.Dimensions{Length: d.Length, Width: d.Width, Unit: d.Unit}
}

// POST /v1/analyses
func (rt *Router) handleCreate(w http.ResponseWriter, req *http.Request) error {
	var body createAnalysisRequest
	if err := rt.decode(req, &body); err != nil {
		return err
	}
	a, err := rt.analyses.Create(req.Context(), appanalyses.CreateCommand{
		OwnerID:     callerID(req),
		Title:       body.Title,
		Description: body.Description,
		FloorPlan:   body.FloorPlan.toDomain(),
		IsPublic:    body.IsPublic,
		Tags:        body.Tags,
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusCreated, a)
}

const maxUploadBytes = 32 << 20

// POST /v1/analyses/upload
// Multipart form: title, description, orientation, is_public, tags
// (comma-separated) plus one or more "files" parts.
func (rt *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	if err := req.ParseMultipartForm(maxUploadBytes); err != nil {
		return domain.Validationf("malformed multipart form: %v", err)
	}
	form := req.MultipartForm
	defer form.RemoveAll()

	var tags []string
	if raw := req.FormValue("tags"); raw != "" {
		tags = strings.Split(raw, ",")
	}
	cmd := appanalyses.CreateCommand{
		OwnerID:     callerID(req),
		Title:       req.FormValue("title"),
		Description: req.FormValue("description"),
		FloorPlan: domain.FloorPlan{
			Orientation: vastu.Direction(strings.ToLower(req.FormValue("orientation"))),
		},
		IsPublic: req.FormValue("is_public") == "true",
		Tags:     tags,
	}

	files := form.File["files"]
	if len(files) == 0 {
		return domain.Validationf("at least one file is required")
	}
	uploads := make([]domain.Blob, 0, len(files))
	closers := make([]func() error, 0, len(files))
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return domain.Validationf("unreadable file part %q", fh.Filename)
		}
		closers = append(closers, f.Close)
		uploads = append(uploads, domain.Blob{
			Reader:   f,
			Size:     fh.Size,
			Name:     fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Folder:   "floor-plans",
		})
	}

	a, err := rt.analyses.CreateWithUploads(req.Context(), cmd, uploads)
	if err != nil {
		return err
	}
	return respond(w, http.StatusCreated, a)
}

// GET /v1/analyses?public=&minScore=&tag=&owner=&page=&limit=&sort=&order=
func (rt *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	f := domain.Filter{
		OwnerID:    q.Get("owner"),
		PublicOnly: q.Get("public") == "true",
		Tag:        q.Get("tag"),
		SortBy:     q.Get("sort"),
		SortDesc:   q.Get("order") != "asc",
	}
	f.Page, _ = strconv.Atoi(q.Get("page"))
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	if raw := q.Get("minScore"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Validationf("minScore must be numeric")
		}
		f.MinScore = &v
	}

	res, err := rt.analyses.List(req.Context(), callerID(req), f)
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, res)
}

func analysisID(req *http.Request) domain.AnalysisID {
	return domain.AnalysisID(chi.URLParam(req, "id"))
}

// GET /v1/analyses/{id}
func (rt *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	a, err := rt.analyses.Get(req.Context(), callerID(req), analysisID(req))
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, a)
}

type updateAnalysisRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=100"`
	Description *string  `json:"description" validate:"omitempty,max=500"`
	IsPublic    *bool    `json:"is_public"`
	Tags        []string `json:"tags" validate:"omitempty,max=20,dive,max=40"`
}

// PATCH /v1/analyses/{id}
func (rt *Router) handleUpdate(w http.ResponseWriter, req *http.Request) error {
	var body updateAnalysisRequest
	if err := rt.decode(req, &body); err != nil {
		return err
	}
	a, err := rt.analyses.Update(req.Context(), callerID(req), analysisID(req), appanalyses.UpdateCommand{
		Title:       body.Title,
		Description: body.Description,
		IsPublic:    body.IsPublic,
		Tags:        body.Tags,
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, a)
}

// DELETE /v1/analyses/{id}
func (rt *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	if err := rt.analyses.Delete(req.Context(), callerID(req), analysisID(req)); err != nil {
		return err
	}
	return respond(w, http.StatusOK, map[string]any{"deleted": true})
}

// POST /v1/analyses/{id}/start — returns immediately in processing state;
// poll GET to observe completion.
func (rt *Router) handleStart(w http.ResponseWriter, req *http.Request) error {
	a, err := rt.analyses.Start(req.Context(), callerID(req), analysisID(req))
	if err != nil {
		return err
	}
	return respond(w, http.StatusAccepted, a)
}

// POST /v1/analyses/{id}/like
func (rt *Router) handleLike(w http.ResponseWriter, req *http.Request) error {
	if err := rt.analyses.Like(req.Context(), analysisID(req)); err != nil {
		return err
	}
	return respond(w, http.StatusOK, map[string]any{"liked": true})
}

// POST /v1/analyses/{id}/share
func (rt *Router) handleShare(w http.ResponseWriter, req *http.Request) error {
	if err := rt.analyses.Share(req.Context(), analysisID(req)); err != nil {
		return err
	}
	return respond(w, http.StatusOK, map[string]any{"shared": true})
}

//
// ==== rules ====
//

// GET /v1/rules?category=&direction=&roomType=&element=&importance=
func (rt *Router) handleRules(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	list, err := rt.catalog.Find(req.Context(), rulesdomain.Query{
		Category:   q.Get("category"),
		Direction:  vastu.Direction(strings.ToLower(q.Get("direction"))),
		RoomType:   vastu.RoomType(strings.ToLower(q.Get("roomType"))),
		Element:    vastu.Element(strings.ToLower(q.Get("element"))),
		Importance: rulesdomain.Importance(strings.ToLower(q.Get("importance"))),
	})
	if err != nil {
		return err
	}
	return respond(w, http.StatusOK, list)
}
