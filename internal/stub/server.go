// Package stub is a deterministic stand-in for the story server. It answers the same
// endpoints with canned text so the front ends can be developed and tested offline.
package stub

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"storyfront/internal/story"
)

const (
	sessionName     = "story"
	imageField      = "image"
	currentStoryKey = "current_story_id"
)

var allowedExtensions = []string{".png", ".jpg", ".jpeg", ".gif"}

type (
	Record struct {
		ID            int
		Content       string
		ImageAnalysis string
		Prompt        string
		AudioPath     string
		CreatedAt     time.Time
	}

	Server struct {
		mu      sync.Mutex
		stories map[int]*Record
		audio   map[string][]byte
		nextID  int
		calls   map[string]int
		faults  map[string]fault
	}

	fault struct {
		broken  bool
		message string
	}
)

func NewServer() *Server {
	return &Server{
		stories: make(map[int]*Record),
		audio:   make(map[string][]byte),
		calls:   make(map[string]int),
		faults:  make(map[string]fault),
		nextID:  1,
	}
}

func (s *Server) Router(cookieSecret []byte) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sessions.Sessions(sessionName, cookie.NewStore(cookieSecret)))
	router.Use(s.track)

	router.POST("/upload", s.Upload)
	router.POST("/regenerate", s.Regenerate)
	router.POST("/generate-speech", s.GenerateSpeech)
	router.GET("/static/audio/:file", s.Audio)
	router.GET("/stories/:id", s.Story)

	return router
}

// Calls reports how many requests reached the given path.
func (s *Server) Calls(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[p]
}

func (s *Server) Record(id int) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.stories[id]
	if !ok {
		return Record{}, false
	}
	return *r, true
}

func (s *Server) Upload(c *gin.Context) {
	header, err := c.FormFile(imageField)
	if err != nil {
		fail(c, http.StatusBadRequest, "No image uploaded")
		return
	}

	ext := strings.ToLower(path.Ext(header.Filename))
	if !slices.Contains(allowedExtensions, ext) {
		fail(c, http.StatusBadRequest, "Invalid image format. Please upload a JPEG, PNG, or GIF.")
		return
	}

	session := sessions.Default(c)
	session.Set(imageField, header.Filename)

	analysis := fmt.Sprintf("A %s picture called %q, %d bytes of it.", strings.TrimPrefix(ext, "."), header.Filename, header.Size)
	record := s.save(tell(header.Filename, ""), analysis, "")

	session.Set(currentStoryKey, record.ID)
	if err = session.Save(); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("Stub story generated", slog.Int("id", record.ID), slog.String("image", header.Filename))
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"imageAnalysis": record.ImageAnalysis,
		"story":         record.Content,
		"storyId":       record.ID,
	})
}

func (s *Server) Regenerate(c *gin.Context) {
	var req story.RegenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad json")
		return
	}

	session := sessions.Default(c)
	name, ok := session.Get(imageField).(string)
	if !ok {
		fail(c, http.StatusBadRequest, "No image found. Please upload an image first.")
		return
	}

	record := s.save(tell(name, req.Prompt), "", req.Prompt)

	session.Set(currentStoryKey, record.ID)
	if err := session.Save(); err != nil {
		fail(c, http.StatusInternalServerError, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"story":   record.Content,
		"storyId": record.ID,
	})
}

func (s *Server) GenerateSpeech(c *gin.Context) {
	var req story.SpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "bad json")
		return
	}
	if req.Text == "" {
		fail(c, http.StatusBadRequest, "No text provided")
		return
	}

	audioPath := "audio/" + uuid.NewString() + ".mp3"

	s.mu.Lock()
	s.audio[path.Base(audioPath)] = []byte("ID3" + req.Text)
	if req.StoryID != nil {
		if id, err := strconv.Atoi(*req.StoryID); err == nil {
			if r, ok := s.stories[id]; ok {
				r.AudioPath = audioPath
			}
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"audioPath": audioPath,
	})
}

func (s *Server) Audio(c *gin.Context) {
	s.mu.Lock()
	data, ok := s.audio[c.Param("file")]
	s.mu.Unlock()

	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "audio/mpeg", data)
}

func (s *Server) Story(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.String(http.StatusNotFound, "Story not found")
		return
	}

	record, ok := s.Record(id)
	if !ok {
		c.String(http.StatusNotFound, "Story not found")
		return
	}
	c.String(http.StatusOK, record.Content)
}

// Fail makes requests to p answer success:false with message. An empty message leaves
// the error field out.
func (s *Server) Fail(p, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[p] = fault{message: message}
}

// Break makes requests to p answer a 502 that is not JSON.
func (s *Server) Break(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[p] = fault{broken: true}
}

// Recover undoes Fail and Break for p.
func (s *Server) Recover(p string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, p)
}

func (s *Server) track(c *gin.Context) {
	s.mu.Lock()
	s.calls[c.Request.URL.Path]++
	f, faulty := s.faults[c.Request.URL.Path]
	s.mu.Unlock()

	switch {
	case !faulty:
		c.Next()
	case f.broken:
		c.Abort()
		c.String(http.StatusBadGateway, "<html>Bad Gateway</html>")
	case f.message == "":
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false})
	default:
		fail(c, http.StatusInternalServerError, f.message)
	}
}

func (s *Server) save(content, analysis, prompt string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := &Record{
		ID:            s.nextID,
		Content:       content,
		ImageAnalysis: analysis,
		Prompt:        prompt,
		CreatedAt:     time.Now(),
	}
	s.stories[record.ID] = record
	s.nextID++
	return record
}

func tell(imageName, prompt string) string {
	subject := strings.TrimSuffix(imageName, path.Ext(imageName))
	lines := []string{
		fmt.Sprintf("Nobody remembered who first found %s.", subject),
		"",
		"It waited in the light until someone looked closely enough.",
	}
	if prompt != "" {
		lines = append(lines, "And this time the story went like this: "+prompt+".")
	}
	return strings.Join(lines, "\n")
}

func fail(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"success": false, "error": msg})
}
