package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"milista/internal/config"
	"milista/internal/dto"
	"milista/internal/model"
	"milista/internal/store"
)

// Estado describes a stored session. Sessions only exist once authentication
// succeeds; a login in flight or a failed one never reaches the session map,
// so autenticado is the only stored state.
type Estado string

const EstadoAutenticado Estado = "autenticado"

// Sesion is one authenticated user with, at most, one loaded lista. A failed
// perfil/place resolution leaves the user authenticated with no lista and a
// status explaining why — authentication is never reverted by a load failure.
type Sesion struct {
	Identity model.Identity
	PlaceID  string
	Lista    *Lista
	Estado   Estado
	Status   string
}

// SessionService authenticates users against the store, resolves each
// identity to its place and owns the lifecycle of the per-place lista
// controllers.
type SessionService interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	Logout(ctx context.Context, uid string) error
	Sesion(uid string) (*Sesion, bool)
	ListaDe(uid string) (*Lista, error)
	Close()
}

// ErrSinLista: the session exists but no lista could be loaded for it.
var ErrSinLista = errors.New("sesion sin lista cargada")

type sessionService struct {
	st  store.Client
	cfg *config.Config

	mu        sync.Mutex
	sesiones  map[string]*Sesion // uid → sesion
	authUnsub store.Unsubscribe
}

func NewSessionService(st store.Client, cfg *config.Config) SessionService {
	s := &sessionService{
		st:       st,
		cfg:      cfg,
		sesiones: make(map[string]*Sesion),
	}
	// Observe the store's auth channel; fires immediately with current state.
	s.authUnsub = st.OnAuthChange(func(id *model.Identity) {
		if id == nil {
			log.Info().Msg("auth: sin identidad")
			return
		}
		log.Info().Str("uid", id.UID).Str("email", id.Email).Msg("auth: identidad activa")
	})
	return s
}

func (s *sessionService) Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error) {
	ident, err := s.st.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err // AuthError: no session is created
	}

	ses := &Sesion{Identity: *ident, Estado: EstadoAutenticado, Status: "¡Login correcto!"}

	// Resolution chain: perfil → placeID → place + subscription. Failures set
	// the status but keep the session authenticated with no lista.
	perfil, err := s.st.FindPerfil(ctx, ident.UID)
	switch {
	case store.IsNotFound(err):
		ses.Status = "Usuario sin place asignado"
	case err != nil:
		ses.Status = "Error: " + err.Error()
	default:
		ses.PlaceID = perfil.PlaceID
		lista := NewLista(s.st, perfil.PlaceID)
		if err := lista.Start(ctx); err != nil {
			ses.Status = "Error cargando lista: " + err.Error()
		} else {
			ses.Lista = lista
		}
	}

	token, err := s.generarToken(ident, ses.PlaceID)
	if err != nil {
		if ses.Lista != nil {
			ses.Lista.Stop()
		}
		return nil, err
	}

	s.mu.Lock()
	if previa, ok := s.sesiones[ident.UID]; ok && previa.Lista != nil {
		previa.Lista.Stop() // re-login replaces the old subscription
	}
	s.sesiones[ident.UID] = ses
	s.mu.Unlock()

	return &dto.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   s.cfg.JWTExpirationHours * 3600,
		User: dto.UsuarioResponse{
			UID:     ident.UID,
			Email:   ident.Email,
			PlaceID: ses.PlaceID,
		},
		Status: ses.Status,
	}, nil
}

func (s *sessionService) Logout(ctx context.Context, uid string) error {
	s.mu.Lock()
	ses, ok := s.sesiones[uid]
	delete(s.sesiones, uid)
	s.mu.Unlock()

	if ok && ses.Lista != nil {
		ses.Lista.Stop()
	}
	return s.st.SignOut(ctx)
}

func (s *sessionService) Sesion(uid string) (*Sesion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, ok := s.sesiones[uid]
	return ses, ok
}

func (s *sessionService) ListaDe(uid string) (*Lista, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ses, ok := s.sesiones[uid]
	if !ok || ses.Lista == nil {
		return nil, ErrSinLista
	}
	return ses.Lista, nil
}

// Close tears down every live session subscription. Used on shutdown.
func (s *sessionService) Close() {
	s.mu.Lock()
	sesiones := make([]*Sesion, 0, len(s.sesiones))
	for _, ses := range s.sesiones {
		sesiones = append(sesiones, ses)
	}
	s.sesiones = make(map[string]*Sesion)
	unsub := s.authUnsub
	s.authUnsub = nil
	s.mu.Unlock()

	for _, ses := range sesiones {
		if ses.Lista != nil {
			ses.Lista.Stop()
		}
	}
	if unsub != nil {
		unsub()
	}
}

func (s *sessionService) generarToken(ident *model.Identity, placeID string) (string, error) {
	claims := jwt.MapClaims{
		"uid":      ident.UID,
		"email":    ident.Email,
		"place_id": placeID,
		"exp":      time.Now().Add(time.Duration(s.cfg.JWTExpirationHours) * time.Hour).Unix(),
		"iat":      time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
