package config

// Example usage of the configuration system:
//
// 1. Load configuration with all sources:
//
//     config, err := config.Load("", nil)
//     if err != nil {
//         log.Fatal(err)
//     }
//
// 2. Load with custom config file:
//
//     config, err := config.Load("/path/to/config.yaml", nil)
//     if err != nil {
//         log.Fatal(err)
//     }
//
// 3. Load with command line flags:
//
//     flags := map[string]interface{}{
//         "output": "./my-downloads",
//         "depth": 3,
//         "max-files": 20,
//         "min-width": 512,
//         "log-level": "debug",
//     }
//     config, err := config.Load("", flags)
//     if err != nil {
//         log.Fatal(err)
//     }
//
// 4. Programmatic configuration:
//
//     config := config.DefaultConfig()
//     config.Output.BaseDirectory = "./artwork"
//     config.Crawl.MaxDepth = 2
//     config.Download.MinWidth = 512
//
//     if err := config.Validate(); err != nil {
//         log.Fatal(err)
//     }
//
// 5. Save configuration to file:
//
//     if err := config.Save(".mediaharvest.yaml"); err != nil {
//         log.Fatal(err)
//     }
//
// 6. Environment variables:
//
//     export MEDIAHARVEST_OUTPUT_DIR="./downloads"
//     export MEDIAHARVEST_MAX_DEPTH="2"
//     export MEDIAHARVEST_MAX_PAGES="50"
//     export MEDIAHARVEST_WORKERS="4"
//     export MEDIAHARVEST_MIN_WIDTH="512"
//     export MEDIAHARVEST_HASH_ALGORITHM="phash"
//     export MEDIAHARVEST_LOG_LEVEL="debug"
//
// 7. Using configuration in your application:
//
//     // Set up per-domain politeness delays
//     limiter := ratelimit.NewDomainLimiter(
//         config.RateLimit.DefaultPageDelay,
//         config.RateLimit.DomainPageDelays,
//     )
//
//     // Configure the download pipeline
//     pipeline := downloader.New(cfg, store, cache, fetcher)
//
//     // Launch a browser engine
//     engine, err := browser.NewEngine(&config.Browser)
