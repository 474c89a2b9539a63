package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"zkpad/internal/domain"
	"zkpad/internal/infra/oscal"
	"zkpad/internal/samples"
	"zkpad/internal/usecase"
)

const maxListLimit = 200

func (s *Server) handleCreate(c *gin.Context) {
	var req usecase.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	result, err := s.Create.Execute(c.Request.Context(), req, c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (s *Server) handleGet(c *gin.Context) {
	a, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleList(c *gin.Context) {
	limit := queryInt(c, "limit", 50)
	if limit > maxListLimit {
		limit = maxListLimit
	}
	filter := domain.ListFilter{
		State:  domain.State(c.Query("status")),
		Limit:  limit,
		Offset: queryInt(c, "offset", 0),
	}
	items, total, err := s.Store.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"attestations": items,
		"total":        total,
		"limit":        filter.Limit,
		"offset":       filter.Offset,
	})
}

type verifyRequest struct {
	AttestationID string   `json:"attestation_id"`
	Checks        []string `json:"checks"`
}

func (s *Server) handleVerify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	if req.AttestationID == "" {
		writeError(c, fmt.Errorf("%w: attestation_id is required", domain.ErrInvalidRequest))
		return
	}
	receipt, err := s.Verify.Execute(c.Request.Context(), req.AttestationID, req.Checks)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleGetReceipt(c *gin.Context) {
	receipt, err := s.Store.GetReceipt(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

func (s *Server) handleDownload(c *gin.Context) {
	a, err := s.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if a.Package == nil {
		writeError(c, fmt.Errorf("%w: attestation %s has no package yet", domain.ErrNotFound, a.ID))
		return
	}

	format := c.DefaultQuery("format", "json")
	switch format {
	case "json":
		canonical, err := usecase.CanonicalPackageBytes(a)
		if err != nil {
			writeError(c, err)
			return
		}
		doc := gin.H{
			"package":        json.RawMessage(canonical),
			"package_digest": a.Package.Digest,
			"signature":      a.Package.Signature,
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.zkpa.json", a.ID))
		c.JSON(http.StatusOK, doc)
	case "oscal":
		doc, err := oscal.AssessmentResults(a)
		if err != nil {
			writeError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.oscal.json", a.ID))
		c.JSON(http.StatusOK, doc)
	default:
		writeError(c, fmt.Errorf("%w: unsupported format %q", domain.ErrInvalidRequest, format))
	}
}

type revokeRequest struct {
	Reason    string `json:"reason"`
	RevokedBy string `json:"revoked_by"`
}

func (s *Server) handleRevoke(c *gin.Context) {
	var req revokeRequest
	_ = c.ShouldBindJSON(&req)
	if req.Reason == "" {
		req.Reason = "revoked by operator"
	}
	a, err := s.Engine.Revoke(c.Request.Context(), c.Param("id"), req.Reason, req.RevokedBy)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleCancel(c *gin.Context) {
	if err := s.Engine.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"claim_id": c.Param("id"), "cancelling": true})
}

type interpretRequest struct {
	ControlStatement string `json:"control_statement"`
	Framework        string `json:"framework"`
	ControlID        string `json:"control_id"`
}

func (s *Server) handleInterpret(c *gin.Context) {
	var req interpretRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	interp, err := s.Interpreter.Execute(c.Request.Context(), req.ControlStatement, req.Framework, req.ControlID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, interp)
}

func (s *Server) handleListControls(c *gin.Context) {
	if query := c.Query("q"); query != "" {
		matches := samples.Search(query)
		c.JSON(http.StatusOK, gin.H{"controls": matches, "count": len(matches)})
		return
	}
	controls := samples.All()
	c.JSON(http.StatusOK, gin.H{
		"controls":   controls,
		"count":      len(controls),
		"frameworks": samples.Frameworks(),
	})
}

func (s *Server) handleGetControl(c *gin.Context) {
	control, ok := samples.ByID(c.Param("id"))
	if !ok {
		writeError(c, fmt.Errorf("%w: control %s", domain.ErrNotFound, c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, gin.H{"control": control})
}

type quickAttestRequest struct {
	CallbackURL string `json:"callback_url"`
}

// handleQuickAttest synthesizes deterministic evidence for a catalog
// control and runs the ordinary create path.
func (s *Server) handleQuickAttest(c *gin.Context) {
	control, ok := samples.ByID(c.Param("id"))
	if !ok {
		writeError(c, fmt.Errorf("%w: control %s", domain.ErrNotFound, c.Param("id")))
		return
	}
	var req quickAttestRequest
	_ = c.ShouldBindJSON(&req)

	createReq := usecase.CreateRequest{
		Evidence: samples.SyntheticEvidence(control),
		Policy:   "zkpa-default-v1",
		Control: domain.Control{
			Framework:        control.Framework,
			ControlID:        control.ControlID,
			Statement:        control.Statement,
			AssessmentResult: domain.AssessmentPass,
			AssessmentWindow: "demo",
		},
		CallbackURL: req.CallbackURL,
	}
	result, err := s.Create.Execute(c.Request.Context(), createReq, c.GetHeader("Idempotency-Key"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"claim_id":   result.ClaimID,
		"status":     result.State,
		"created_at": result.CreatedAt,
		"control":    control,
	})
}

func (s *Server) handleDemoReset(c *gin.Context) {
	s.Store.ResetAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"reset": true})
}

func queryInt(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
