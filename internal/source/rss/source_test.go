package rss

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/pkg/logger"
)

func feedXML(now time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>notes</title>
<item>
  <title>新手 &lt;b&gt;租房&lt;/b&gt; 指南</title>
  <link>https://example.com/n/1</link>
  <description>&lt;p&gt;押金   怎么退&lt;/p&gt;
  看这里</description>
  <category>租房</category>
  <author>wang@example.com (小王)</author>
  <pubDate>%s</pubDate>
</item>
<item>
  <title>old</title>
  <link>https://example.com/n/2</link>
  <pubDate>%s</pubDate>
</item>
<item>
  <title>no date</title>
  <link>https://example.com/n/3</link>
</item>
<item>
  <title>no link</title>
</item>
</channel></rss>`, now.Add(-time.Hour).Format(time.RFC1123Z), now.Add(-30*24*time.Hour).Format(time.RFC1123Z))
}

func TestSource_Fetch(t *testing.T) {
	now := time.Now()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(feedXML(now)))
	}))
	defer srv.Close()

	s := New(config.RSSFeed{Name: "notes", URL: srv.URL}, nil, logger.Nop())
	assert.Equal(t, "notes", s.Name())
	assert.Equal(t, "rss", s.Type())

	topics, err := s.Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, topics, 2)

	assert.Equal(t, "新手 租房 指南", topics[0].Title)
	assert.Equal(t, "押金 怎么退 看这里", topics[0].Body)
	assert.Equal(t, "https://example.com/n/1", topics[0].URL)
	assert.Equal(t, []string{"租房"}, []string(topics[0].Tags))
	assert.Equal(t, "notes", topics[0].SourceName)
	assert.NotEmpty(t, topics[0].ExternalID)
	assert.Equal(t, "no date", topics[1].Title)

	topics, err = s.Fetch(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, topics, 1)
}

func TestSource_FetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := New(config.RSSFeed{Name: "broken", URL: srv.URL}, nil, logger.Nop())
	_, err := s.Fetch(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Error(t, s.HealthCheck(context.Background()))
}

func TestNewMultiple(t *testing.T) {
	sources := NewMultiple(config.RSSConfig{Feeds: []config.RSSFeed{{Name: "a", URL: "http://a"}, {Name: "b", URL: "http://b"}}}, nil, logger.Nop())
	require.Len(t, sources, 2)
	assert.Equal(t, "b", sources[1].Name())
}
