package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PixelCrafter-ath/fit/services/campaign"
	"github.com/PixelCrafter-ath/fit/services/contact"
	"github.com/PixelCrafter-ath/fit/services/report"
	"github.com/PixelCrafter-ath/fit/services/settings"
)

const dateLayout = "2006-01-02"

type apiHandler struct {
	contacts *contact.Service
	campaign *campaign.Service
	report   *report.Service
	settings *settings.Service
}

func (h *apiHandler) ListContacts(c *gin.Context) {
	contacts, err := h.contacts.ListActive(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts, "count": len(contacts)})
}

// StatusForDate reports who checked in on the given date and who did not.
func (h *apiHandler) StatusForDate(c *gin.Context) {
	status, err := h.report.StatusForDate(c.Request.Context(), c.Param("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ContactHistory returns the per-day check-in history for a contact. Defaults
// to the trailing 30 days when no range is given.
func (h *apiHandler) ContactHistory(c *gin.Context) {
	end := c.Query("end")
	start := c.Query("start")
	if end == "" {
		end = time.Now().UTC().Format(dateLayout)
	}
	if start == "" {
		endT, err := time.Parse(dateLayout, end)
		if err == nil {
			start = endT.AddDate(0, 0, -29).Format(dateLayout)
		}
	}

	history, err := h.report.History(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *apiHandler) ListSummaries(c *gin.Context) {
	rows, err := h.campaign.ListSummaries(c.Request.Context(), campaign.SummaryFilter{
		ContactID: c.Query("contact_id"),
		WeekStart: c.Query("week_start"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summaries": rows, "count": len(rows)})
}

func (h *apiHandler) GetSettings(c *gin.Context) {
	s, err := h.settings.Get(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *apiHandler) UpdateSettings(c *gin.Context) {
	var in settings.Settings
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed settings payload"})
		return
	}

	updated, err := h.settings.Update(c.Request.Context(), &in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
