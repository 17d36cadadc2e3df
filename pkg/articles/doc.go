// Package articles stores customer documentation articles.
//
// Every read and write carries the acting customer, so one tenant never sees
// another's content. An article outside the caller's customer answers as not
// found. Callers in system scope see every customer's articles.
//
// Routes declare Documents permissions (viewArticles, createArticles,
// editArticles, deleteArticles) through the route table:
//
//	articles.NewHandlers(articles.NewStore(db)).RegisterRoutes(api, routes)
package articles
