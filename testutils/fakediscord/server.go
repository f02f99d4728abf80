// Package fakediscord is an in-memory REST server speaking the subset of the
// Discord API the cloner uses. It serves over TLS like the real API.
package fakediscord

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/gorilla/mux"
)

type Message struct {
	ID        string
	Author    string
	Content   string
	Timestamp time.Time
}

type Guild struct {
	ID       string
	Name     string
	Icon     string
	Roles    []*discordgo.Role
	Channels []*discordgo.Channel
}

// Fault makes matching requests fail with Status. Nth selects the n-th matching
// request (1-based); zero fails every match.
type Fault struct {
	Method string
	Path   string
	Nth    int
	Status int
	Body   any
	seen   int
}

type Server struct {
	*httptest.Server

	mu         sync.Mutex
	token      string
	user       *discordgo.User
	guilds     map[string]*Guild
	order      []string
	messages   map[string][]Message
	nextID     int64
	faults     []*Fault
	requests   map[string]int
	iconData   []byte
	beforeHook func(r *http.Request)
}

// New starts a server that accepts only token.
func New(token string) *Server {
	s := &Server{
		token:    token,
		user:     &discordgo.User{ID: "900000", Username: "cloner", GlobalName: "Cloner"},
		guilds:   make(map[string]*Guild),
		messages: make(map[string][]Message),
		nextID:   100000,
		requests: make(map[string]int),
		iconData: []byte("\x89PNG fake icon"),
	}

	router := mux.NewRouter()
	router.HandleFunc("/users/@me", s.handleGetUser).Methods(http.MethodGet)
	router.HandleFunc("/users/@me/guilds", s.handleListUserGuilds).Methods(http.MethodGet)
	router.HandleFunc("/guilds", s.handleCreateGuild).Methods(http.MethodPost)
	router.HandleFunc("/guilds/{guildID}", s.handleGetGuild).Methods(http.MethodGet)
	router.HandleFunc("/guilds/{guildID}", s.handleModifyGuild).Methods(http.MethodPatch)
	router.HandleFunc("/guilds/{guildID}/roles", s.handleListRoles).Methods(http.MethodGet)
	router.HandleFunc("/guilds/{guildID}/roles", s.handleCreateRole).Methods(http.MethodPost)
	router.HandleFunc("/guilds/{guildID}/channels", s.handleListChannels).Methods(http.MethodGet)
	router.HandleFunc("/guilds/{guildID}/channels", s.handleCreateChannel).Methods(http.MethodPost)
	router.HandleFunc("/channels/{channelID}/permissions/{targetID}", s.handleSetPermission).Methods(http.MethodPut)
	router.HandleFunc("/channels/{channelID}/messages", s.handleListMessages).Methods(http.MethodGet)
	router.HandleFunc("/channels/{channelID}/messages", s.handleSendMessage).Methods(http.MethodPost)
	router.HandleFunc("/icons/{guildID}/{file}", s.handleIcon).Methods(http.MethodGet)
	router.Use(s.middleware)

	s.Server = httptest.NewTLSServer(router)
	return s
}

// AddGuild registers a guild and returns its id. The @everyone role is created with the guild id.
func (s *Server) AddGuild(name, icon string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addGuildLocked(name, icon)
}

func (s *Server) AddRole(guildID string, role discordgo.Role) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	role.ID = s.newIDLocked()
	s.guilds[guildID].Roles = append(s.guilds[guildID].Roles, &role)
	return role.ID
}

func (s *Server) AddChannel(guildID string, channel discordgo.Channel) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel.ID = s.newIDLocked()
	channel.GuildID = guildID
	s.guilds[guildID].Channels = append(s.guilds[guildID].Channels, &channel)
	return channel.ID
}

// AddMessages appends messages oldest first to a channel.
func (s *Server) AddMessages(channelID, author string, contents ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, content := range contents {
		s.messages[channelID] = append(s.messages[channelID], Message{
			ID:        s.newIDLocked(),
			Author:    author,
			Content:   content,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (s *Server) AddFault(f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, &f)
}

// BeforeRequest installs a hook run before each request is served.
func (s *Server) BeforeRequest(hook func(r *http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.beforeHook = hook
}

func (s *Server) Guild(id string) *Guild {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.guilds[id]
	if !ok {
		return nil
	}
	clone := *g
	clone.Roles = append([]*discordgo.Role(nil), g.Roles...)
	clone.Channels = append([]*discordgo.Channel(nil), g.Channels...)
	return &clone
}

func (s *Server) Messages(channelID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages[channelID]...)
}

// Requests returns how many requests hit "METHOD /path".
func (s *Server) Requests(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+path]
}

func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		hook := s.beforeHook
		s.mu.Unlock()
		if hook != nil {
			hook(r)
		}

		s.mu.Lock()
		s.requests[r.Method+" "+r.URL.Path]++
		authorized := strings.HasPrefix(r.URL.Path, "/icons/") || r.Header.Get("Authorization") == s.token
		var fault *Fault
		for _, f := range s.faults {
			if f.Method != r.Method || f.Path != r.URL.Path {
				continue
			}
			f.seen++
			if f.Nth == 0 || f.Nth == f.seen {
				fault = f
				break
			}
		}
		s.mu.Unlock()

		if !authorized {
			writeJSON(w, http.StatusUnauthorized, discordgo.APIErrorMessage{Code: 0, Message: "401: Unauthorized"})
			return
		}
		if fault != nil {
			body := fault.Body
			if body == nil {
				body = discordgo.APIErrorMessage{Code: 50013, Message: http.StatusText(fault.Status)}
			}
			writeJSON(w, fault.Status, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.user)
}

func (s *Server) handleListUserGuilds(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guilds := make([]*discordgo.UserGuild, 0, len(s.order))
	for _, id := range s.order {
		g := s.guilds[id]
		guilds = append(guilds, &discordgo.UserGuild{ID: g.ID, Name: g.Name, Icon: g.Icon})
	}
	writeJSON(w, http.StatusOK, guilds)
}

func (s *Server) handleCreateGuild(w http.ResponseWriter, r *http.Request) {
	var params discordgo.GuildParams
	if !decode(w, r, &params) {
		return
	}
	s.mu.Lock()
	id := s.addGuildLocked(params.Name, "")
	g := s.guilds[id]
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, &discordgo.Guild{ID: g.ID, Name: g.Name})
}

func (s *Server) handleGetGuild(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, &discordgo.Guild{ID: g.ID, Name: g.Name, Icon: g.Icon})
}

func (s *Server) handleModifyGuild(w http.ResponseWriter, r *http.Request) {
	var params discordgo.GuildParams
	if !decode(w, r, &params) {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	if params.Name != "" {
		g.Name = params.Name
	}
	if params.Icon != "" {
		g.Icon = fmt.Sprintf("icon-%d", len(params.Icon))
	}
	out := &discordgo.Guild{ID: g.ID, Name: g.Name, Icon: g.Icon}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	roles := append([]*discordgo.Role(nil), g.Roles...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, roles)
}

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var params discordgo.RoleParams
	if !decode(w, r, &params) {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	role := &discordgo.Role{ID: s.newIDLocked(), Name: params.Name, Position: 1}
	if params.Color != nil {
		role.Color = *params.Color
	}
	if params.Hoist != nil {
		role.Hoist = *params.Hoist
	}
	if params.Mentionable != nil {
		role.Mentionable = *params.Mentionable
	}
	if params.Permissions != nil {
		role.Permissions = *params.Permissions
	}
	g.Roles = append(g.Roles, role)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, role)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	channels := append([]*discordgo.Channel(nil), g.Channels...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, channels)
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	var data discordgo.GuildChannelCreateData
	if !decode(w, r, &data) {
		return
	}
	g, ok := s.lookupGuild(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if data.ParentID != "" && s.findChannelLocked(data.ParentID) == nil {
		writeJSON(w, http.StatusBadRequest, discordgo.APIErrorMessage{Code: 50035, Message: "Invalid Form Body"})
		return
	}
	channel := &discordgo.Channel{
		ID:               s.newIDLocked(),
		GuildID:          g.ID,
		Name:             data.Name,
		Type:             data.Type,
		Topic:            data.Topic,
		NSFW:             data.NSFW,
		Position:         data.Position,
		Bitrate:          data.Bitrate,
		UserLimit:        data.UserLimit,
		RateLimitPerUser: data.RateLimitPerUser,
		ParentID:         data.ParentID,
	}
	g.Channels = append(g.Channels, channel)
	writeJSON(w, http.StatusCreated, channel)
}

func (s *Server) handleSetPermission(w http.ResponseWriter, r *http.Request) {
	var overwrite discordgo.PermissionOverwrite
	if !decode(w, r, &overwrite) {
		return
	}
	vars := mux.Vars(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	channel := s.findChannelLocked(vars["channelID"])
	if channel == nil {
		writeJSON(w, http.StatusNotFound, discordgo.APIErrorMessage{Code: 10003, Message: "Unknown Channel"})
		return
	}
	overwrite.ID = vars["targetID"]
	channel.PermissionOverwrites = append(channel.PermissionOverwrites, &overwrite)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelID"]
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}
	before := r.URL.Query().Get("before")

	s.mu.Lock()
	all := s.messages[channelID]
	s.mu.Unlock()

	// newest first, as the real endpoint orders them
	out := make([]*discordgo.Message, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		m := all[i]
		if before != "" && !idLess(m.ID, before) {
			continue
		}
		out = append(out, &discordgo.Message{
			ID:        m.ID,
			ChannelID: channelID,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Author:    &discordgo.User{ID: "author-" + m.Author, Username: m.Author},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var send discordgo.MessageSend
	if !decode(w, r, &send) {
		return
	}
	channelID := mux.Vars(r)["channelID"]

	s.mu.Lock()
	if s.findChannelLocked(channelID) == nil {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, discordgo.APIErrorMessage{Code: 10003, Message: "Unknown Channel"})
		return
	}
	m := Message{ID: s.newIDLocked(), Author: s.user.Username, Content: send.Content, Timestamp: time.Now().UTC()}
	s.messages[channelID] = append(s.messages[channelID], m)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, &discordgo.Message{ID: m.ID, ChannelID: channelID, Content: m.Content})
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(s.iconData)
}

func (s *Server) lookupGuild(w http.ResponseWriter, r *http.Request) (*Guild, bool) {
	s.mu.Lock()
	g, ok := s.guilds[mux.Vars(r)["guildID"]]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, discordgo.APIErrorMessage{Code: 10004, Message: "Unknown Guild"})
		return nil, false
	}
	return g, true
}

func (s *Server) addGuildLocked(name, icon string) string {
	id := s.newIDLocked()
	s.guilds[id] = &Guild{
		ID:    id,
		Name:  name,
		Icon:  icon,
		Roles: []*discordgo.Role{{ID: id, Name: "@everyone"}},
	}
	s.order = append(s.order, id)
	return id
}

func (s *Server) findChannelLocked(id string) *discordgo.Channel {
	ids := make([]string, 0, len(s.guilds))
	for gid := range s.guilds {
		ids = append(ids, gid)
	}
	sort.Strings(ids)
	for _, gid := range ids {
		for _, c := range s.guilds[gid].Channels {
			if c.ID == id {
				return c
			}
		}
	}
	return nil
}

func (s *Server) newIDLocked() string {
	s.nextID++
	return strconv.FormatInt(s.nextID, 10)
}

func idLess(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return ai < bi
}

func decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, discordgo.APIErrorMessage{Code: 50109, Message: "The request body contains invalid JSON."})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
